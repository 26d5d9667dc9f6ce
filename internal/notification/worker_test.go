package notification

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// mockSender is a mock implementation of the PushSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func TestWorkerPool_Dispatch(t *testing.T) {
	db, _ := newTestDB(t)
	wp := NewWorkerPool(1, db, &webpush.Options{})

	wp.Dispatch(PushJob{MachineID: "m-1", Title: "Lobby Snack - Machine Offline", Body: "offline"})

	select {
	case job := <-wp.jobs:
		assert.Equal(t, "m-1", job.MachineID)
		assert.Equal(t, "Lobby Snack - Machine Offline", job.Title)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for job to be dispatched")
	}
}

func TestWorkerPool_DispatchDropsWhenFull(t *testing.T) {
	db, _ := newTestDB(t)
	wp := NewWorkerPool(1, db, &webpush.Options{})

	// No workers running: the buffered queue holds exactly one job and the
	// second dispatch must not block.
	wp.Dispatch(PushJob{MachineID: "m-1"})

	done := make(chan struct{})
	go func() {
		wp.Dispatch(PushJob{MachineID: "m-2"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("dispatch blocked on a full queue")
	}
	assert.Len(t, wp.jobs, 1)
}

func TestWorkerPool_SkipsSendWithoutPushOptions(t *testing.T) {
	gormDB, mock := newTestDB(t)
	// VAPID keys unconfigured: the pool carries nil options, as main wires
	// it when push is disabled.
	wp := NewWorkerPool(1, gormDB, nil)
	wp.sender = &mockSender{
		SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
			t.Fatal("no push must be attempted without VAPID options")
			return nil, nil
		},
	}

	// A subscription for the machine exists in the database; the job must
	// be dropped before the subscription query, without panicking.
	wp.sendForMachine(context.Background(), PushJob{MachineID: "m-1", Title: "Machine Offline"})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkerPool_WorkerLogic(t *testing.T) {
	gormDB, mock := newTestDB(t)
	wp := NewWorkerPool(1, gormDB, &webpush.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	t.Run("sends notification for one subscription", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				assert.Equal(t, "https://example.com/push", sub.Endpoint)
				assert.Contains(t, string(payload), "Machine Offline")
				wg.Done()
				return &http.Response{
					StatusCode: http.StatusCreated,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		mock.ExpectQuery(`SELECT .* FROM "push_subscriptions".*JOIN subscription_machine_mapping smm.*WHERE smm\.machine_id = \$1`).
			WithArgs("m-101").
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}).
				AddRow("https://example.com/push", "test_p256dh", "test_auth", time.Now()))

		wp.Dispatch(PushJob{MachineID: "m-101", Title: "Machine Offline", Body: "offline for 10m"})
		wg.Wait()
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deletes expired subscription", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				defer wg.Done()
				return &http.Response{
					StatusCode: http.StatusGone,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		mock.ExpectQuery(`SELECT .* FROM "push_subscriptions".*JOIN subscription_machine_mapping smm.*WHERE smm\.machine_id = \$1`).
			WithArgs("m-102").
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}).
				AddRow("https://example.com/expired", "test_p256dh", "test_auth", time.Now()))

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "push_subscriptions" WHERE`).
			WithArgs("https://example.com/expired").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		wp.Dispatch(PushJob{MachineID: "m-102", Title: "Machine Error", Body: "E42"})
		wg.Wait()

		// The delete happens after Send returns; give the worker a moment.
		assert.Eventually(t, func() bool {
			return mock.ExpectationsWereMet() == nil
		}, time.Second, 10*time.Millisecond)
	})
}
