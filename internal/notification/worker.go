package notification

import (
	"context"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"billiard-pos-backend/internal/logger"
	"billiard-pos-backend/internal/model"
)

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is the real implementation of Sender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool delivers "table is available again" pushes to subscribed staff
// devices without blocking the component that observed the transition.
type WorkerPool struct {
	size    int
	jobs    chan string
	db      *gorm.DB
	webpush *webpush.Options
	sender  Sender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan string, size),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// SetSender replaces the sender. For tests.
func (wp *WorkerPool) SetSender(s Sender) {
	wp.sender = s
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	for {
		select {
		case tableID := <-wp.jobs:
			wp.notifyTableAvailable(ctx, tableID)
		case <-ctx.Done():
			logger.Debug("notification worker shutting down", "worker", id)
			return
		}
	}
}

// Dispatch queues a notification job for a table that became available.
func (wp *WorkerPool) Dispatch(tableID string) {
	wp.jobs <- tableID
}

// notifyTableAvailable fetches subscriptions for the table and pushes to each.
func (wp *WorkerPool) notifyTableAvailable(ctx context.Context, tableID string) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_table_mapping stm ON stm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("stm.table_id = ?", tableID).
		Find(&subscriptions).Error
	if err != nil {
		logger.Error("fetching subscriptions failed", "table_id", tableID, "error", err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	label := tableID
	var table model.Table
	if err := wp.db.WithContext(ctx).
		Select("name").
		First(&table, "id = ?", tableID).Error; err != nil {
		logger.Warn("table lookup for notification failed", "table_id", tableID, "error", err)
	} else if table.Name != "" {
		label = table.Name
	}

	payload := []byte(fmt.Sprintf("%s sudah tersedia!", label))
	for _, sub := range subscriptions {
		wp.send(ctx, sub, payload)
	}
}

// send pushes a single notification and prunes expired subscriptions.
func (wp *WorkerPool) send(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		logger.Warn("push notification failed", "endpoint", sub.Endpoint, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		logger.Info("push subscription expired, deleting", "endpoint", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Select("Tables").Delete(&sub).Error; err != nil {
			logger.Warn("failed to delete expired subscription", "endpoint", sub.Endpoint, "error", err)
		}
	}
}
