package persist

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dorm-laundry-backend/internal/model"
)

// Gateway mirrors the in-memory state to the snapshot database. Writes are
// synchronous and write-through: a crash loses at most the in-flight request.
type Gateway interface {
	Load(ctx context.Context) (*model.AppState, error)
	Save(ctx context.Context, st *model.AppState) error
}

// gormGateway implements Gateway using GORM.
type gormGateway struct {
	db *gorm.DB
}

// NewGormGateway creates a new GORM-backed snapshot gateway.
func NewGormGateway(db *gorm.DB) Gateway {
	return &gormGateway{db: db}
}

// Load reads the full snapshot. It returns (nil, nil) when no machines have
// ever been persisted, which the caller treats as first start.
func (g *gormGateway) Load(ctx context.Context) (*model.AppState, error) {
	var machines []model.Machine
	if err := g.db.WithContext(ctx).Order("type, seq").Find(&machines).Error; err != nil {
		return nil, fmt.Errorf("load machines: %w", err)
	}
	if len(machines) == 0 {
		return nil, nil
	}

	var entries []model.WaitlistEntry
	if err := g.db.WithContext(ctx).Order("type, position").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("load waitlists: %w", err)
	}
	waitlists := model.Waitlists{Washers: []model.WaitlistEntry{}, Dryers: []model.WaitlistEntry{}}
	for _, e := range entries {
		if e.Type == model.TypeWasher {
			waitlists.Washers = append(waitlists.Washers, e)
		} else {
			waitlists.Dryers = append(waitlists.Dryers, e)
		}
	}

	issues := []model.ReportedIssue{}
	if err := g.db.WithContext(ctx).Order("timestamp").Find(&issues).Error; err != nil {
		return nil, fmt.Errorf("load issues: %w", err)
	}

	usage := []model.UsageRecord{}
	if err := g.db.WithContext(ctx).Order("timestamp").Find(&usage).Error; err != nil {
		return nil, fmt.Errorf("load usage history: %w", err)
	}

	stats := model.Stats{ID: 1}
	if err := g.db.WithContext(ctx).First(&stats, 1).Error; err != nil && err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("load stats: %w", err)
	}

	return &model.AppState{
		Machines:       machines,
		Waitlists:      waitlists,
		ReportedIssues: issues,
		UsageHistory:   usage,
		Stats:          stats,
	}, nil
}

// Save writes the snapshot transactionally. Machines, usage records and
// stats are upserted; waitlists and issues are replaced wholesale because
// entries can disappear (leave, delete).
func (g *gormGateway) Save(ctx context.Context, st *model.AppState) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(st.Machines) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "seq"}, {Name: "type"}},
				UpdateAll: true,
			}).Create(&st.Machines).Error; err != nil {
				return fmt.Errorf("save machines: %w", err)
			}
		}

		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.WaitlistEntry{}).Error; err != nil {
			return fmt.Errorf("clear waitlists: %w", err)
		}
		var entries []model.WaitlistEntry
		for i, e := range st.Waitlists.Washers {
			e.Type = model.TypeWasher
			e.Position = i
			entries = append(entries, e)
		}
		for i, e := range st.Waitlists.Dryers {
			e.Type = model.TypeDryer
			e.Position = i
			entries = append(entries, e)
		}
		if len(entries) > 0 {
			if err := tx.Create(&entries).Error; err != nil {
				return fmt.Errorf("save waitlists: %w", err)
			}
		}

		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.ReportedIssue{}).Error; err != nil {
			return fmt.Errorf("clear issues: %w", err)
		}
		if len(st.ReportedIssues) > 0 {
			if err := tx.Create(&st.ReportedIssues).Error; err != nil {
				return fmt.Errorf("save issues: %w", err)
			}
		}

		if len(st.UsageHistory) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				UpdateAll: true,
			}).Create(&st.UsageHistory).Error; err != nil {
				return fmt.Errorf("save usage history: %w", err)
			}
		}

		stats := st.Stats
		stats.ID = 1
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(&stats).Error; err != nil {
			return fmt.Errorf("save stats: %w", err)
		}
		return nil
	})
}
