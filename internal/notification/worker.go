package notification

import (
	"context"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"dorm-laundry-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Job asks the pool to tell one student that a machine type freed up.
type Job struct {
	MachineType model.MachineType
	StudentID   string
}

// WorkerPool sends waitlist notifications through a pool of workers. It is
// best-effort by design: the head of the queue is told a machine freed up,
// but is not dequeued until they actually start one.
type WorkerPool struct {
	size    int
	jobs    chan Job
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
	logger  *zap.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options, logger *zap.Logger) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Job, size*4),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		logger:  logger,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.logger.Info("notification worker started", zap.Int("worker", id))
	for {
		select {
		case j := <-wp.jobs:
			wp.notifyStudent(ctx, j)
		case <-ctx.Done():
			wp.logger.Info("notification worker shutting down", zap.Int("worker", id))
			return
		}
	}
}

// NotifyHead implements the state store's Notifier. Non-blocking: the job is
// dropped when the queue is full.
func (wp *WorkerPool) NotifyHead(machineType model.MachineType, head model.WaitlistEntry) {
	select {
	case wp.jobs <- Job{MachineType: machineType, StudentID: head.StudentID}:
	default:
		wp.logger.Warn("notification queue full, dropping job",
			zap.String("student", head.StudentID))
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Job {
	return wp.jobs
}

// notifyStudent fetches the student's push subscriptions and sends one
// notification per registered browser.
func (wp *WorkerPool) notifyStudent(ctx context.Context, j Job) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Where("student_id = ?", j.StudentID).
		Find(&subscriptions).Error
	if err != nil {
		wp.logger.Error("fetching subscriptions failed",
			zap.String("student", j.StudentID), zap.Error(err))
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	message := fmt.Sprintf("A %s is now available! You are first in the waitlist.", j.MachineType)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

// sendNotification sends a single web push notification and prunes
// subscriptions the push service reports as gone.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.logger.Error("sending notification failed",
			zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		wp.logger.Info("subscription expired, deleting", zap.String("endpoint", sub.Endpoint))
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			wp.logger.Error("deleting expired subscription failed",
				zap.String("endpoint", sub.Endpoint), zap.Error(err))
		}
	}
}
