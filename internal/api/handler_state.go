package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"dorm-laundry-backend/internal/model"
	"dorm-laundry-backend/internal/state"
)

// GetState handles GET /api/state: the full snapshot with refreshed timers.
func (h *Handler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Snapshot(c.Request.Context()))
}

// stateEvent is the envelope of a POST /api/state mutation.
type stateEvent struct {
	Event string          `json:"event" binding:"required"`
	Data  json.RawMessage `json:"data"`
}

type machineStartData struct {
	MachineID   int               `json:"machineId"`
	MachineType model.MachineType `json:"machineType"`
	Mode        string            `json:"mode"`
	Duration    int               `json:"duration"`
	StudentID   string            `json:"studentId"`
	PhoneNumber string            `json:"phoneNumber"`
}

type machineActionData struct {
	MachineID   int               `json:"machineId"`
	MachineType model.MachineType `json:"machineType"`
	StudentID   string            `json:"studentId"`
}

type waitlistData struct {
	MachineType model.MachineType `json:"machineType"`
	StudentID   string            `json:"studentId"`
	PhoneNumber string            `json:"phoneNumber"`
}

type issueReportData struct {
	MachineType model.MachineType `json:"machineType"`
	MachineID   int               `json:"machineId"`
	ReportedBy  string            `json:"reportedBy"`
	Phone       string            `json:"phone"`
	Description string            `json:"description"`
}

type issueActionData struct {
	IssueID  string `json:"issueId"`
	Resolved bool   `json:"resolved"`
}

type machineLockData struct {
	MachineID   int               `json:"machineId"`
	MachineType model.MachineType `json:"machineType"`
	Locked      bool              `json:"locked"`
}

type adminUpdateData struct {
	MachineID   int                 `json:"machineId"`
	MachineType model.MachineType   `json:"machineType"`
	Status      model.MachineStatus `json:"status"`
}

// PostState handles POST /api/state: applies one named mutation and returns
// the resulting snapshot.
func (h *Handler) PostState(c *gin.Context) {
	var ev stateEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing event type"})
		return
	}

	st, err := h.dispatch(c, ev)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "state": st})
}

func (h *Handler) dispatch(c *gin.Context, ev stateEvent) (*model.AppState, error) {
	ctx := c.Request.Context()

	bind := func(v any) error {
		if len(ev.Data) == 0 {
			return nil
		}
		if err := json.Unmarshal(ev.Data, v); err != nil {
			return state.ErrInvalidArgument
		}
		return nil
	}

	switch ev.Event {
	case "machine-start":
		var d machineStartData
		if err := bind(&d); err != nil {
			return nil, err
		}
		return h.store.StartMachine(ctx, state.StartRequest{
			Seq:             d.MachineID,
			Type:            d.MachineType,
			Mode:            d.Mode,
			DurationMinutes: d.Duration,
			StudentID:       d.StudentID,
			Phone:           d.PhoneNumber,
		})

	case "machine-cancel":
		var d machineActionData
		if err := bind(&d); err != nil {
			return nil, err
		}
		return h.store.CancelMachine(ctx, d.MachineID, d.MachineType, d.StudentID)

	case "clothes-collected":
		var d machineActionData
		if err := bind(&d); err != nil {
			return nil, err
		}
		return h.store.CollectClothes(ctx, d.MachineID, d.MachineType, d.StudentID)

	case "waitlist-join":
		var d waitlistData
		if err := bind(&d); err != nil {
			return nil, err
		}
		return h.store.JoinWaitlist(ctx, d.MachineType, d.StudentID, d.PhoneNumber)

	case "waitlist-leave":
		var d waitlistData
		if err := bind(&d); err != nil {
			return nil, err
		}
		return h.store.LeaveWaitlist(ctx, d.MachineType, d.StudentID)

	case "issue-report":
		var d issueReportData
		if err := bind(&d); err != nil {
			return nil, err
		}
		return h.store.ReportIssue(ctx, d.MachineType, d.MachineID, d.ReportedBy, d.Phone, d.Description)

	case "issue-resolve":
		var d issueActionData
		if err := bind(&d); err != nil {
			return nil, err
		}
		return h.store.ResolveIssue(ctx, d.IssueID, d.Resolved)

	case "issue-delete":
		var d issueActionData
		if err := bind(&d); err != nil {
			return nil, err
		}
		return h.store.DeleteIssue(ctx, d.IssueID)

	case "machine-lock":
		var d machineLockData
		if err := bind(&d); err != nil {
			return nil, err
		}
		return h.store.SetLock(ctx, d.MachineID, d.MachineType, d.Locked)

	case "admin-update-machine":
		var d adminUpdateData
		if err := bind(&d); err != nil {
			return nil, err
		}
		return h.store.SetMaintenance(ctx, d.MachineID, d.MachineType, d.Status)

	default:
		return nil, fmt.Errorf("%w: unknown event %q", state.ErrInvalidArgument, ev.Event)
	}
}

// GetWaitlistPosition handles GET /api/waitlist/:type/position?student_id=…
func (h *Handler) GetWaitlistPosition(c *gin.Context) {
	typ := model.MachineType(c.Param("type"))
	studentID := c.Query("student_id")
	if studentID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "student_id is required"})
		return
	}

	position, estimate, err := h.store.WaitlistPosition(c.Request.Context(), typ, studentID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"position": position, "estimatedMinutes": estimate})
}
