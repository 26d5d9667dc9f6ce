package notification

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"vending-fleet-backend/internal/model"
)

// PushJob is one alarm push request fanned out to a machine's subscribers.
type PushJob struct {
	MachineID string
	Title     string
	Body      string
}

// PushSender defines the interface for sending a web push notification.
type PushSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of PushSender using the webpush
// library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool manages a pool of workers for sending push notifications.
type WorkerPool struct {
	size    int
	jobs    chan PushJob
	db      *gorm.DB
	webpush *webpush.Options
	sender  PushSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan PushJob, size), // Buffered channel
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{}, // Use the real sender by default
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Push worker %d started", id)
	for {
		select {
		case job := <-wp.jobs:
			wp.sendForMachine(ctx, job)
		case <-ctx.Done():
			log.Printf("Push worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues a job for the worker pool without blocking the caller; a
// full queue drops the push (email remains the reliable channel).
func (wp *WorkerPool) Dispatch(job PushJob) {
	select {
	case wp.jobs <- job:
	default:
		log.Printf("Push queue full, dropping push for machine %s", job.MachineID)
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan PushJob {
	return wp.jobs
}

// sendForMachine fetches subscriptions and sends pushes for a given machine.
func (wp *WorkerPool) sendForMachine(ctx context.Context, job PushJob) {
	// Without VAPID options the webpush library cannot send; subscriptions
	// may still exist in the database.
	if wp.webpush == nil {
		log.Printf("Web push not configured, dropping push for machine %s", job.MachineID)
		return
	}

	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_machine_mapping smm ON smm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("smm.machine_id = ?", job.MachineID).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("Error fetching subscriptions for machine %s: %v", job.MachineID, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(map[string]string{
		"title": job.Title,
		"body":  job.Body,
	})
	if err != nil {
		log.Printf("Error marshaling push payload for machine %s: %v", job.MachineID, err)
		return
	}

	log.Printf("Sending %d pushes for machine %s", len(subscriptions), job.MachineID)
	for _, sub := range subscriptions {
		wp.sendOne(ctx, sub, payload)
	}
}

// sendOne sends a single web push notification.
func (wp *WorkerPool) sendOne(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending push to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
