package worker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"olympspa/internal/database"
	"olympspa/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessTaskSuccess(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(db, sheets, nil, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	require.NoError(t, worker.EnqueueReservation(ctx, testReservation("res-1")))

	task, ok := worker.tryLocalQueue()
	require.True(t, ok, "expected task in local queue")
	assert.Equal(t, TaskAppendReservation, task.TaskType)
	assert.Equal(t, "res-1", task.ReservationID)
	worker.processTask(ctx, &task)

	status, retryCount := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusCompleted, status)
	assert.Equal(t, 0, retryCount)
	assert.Equal(t, []string{"res-1"}, sheets.appendedIDs())
}

func TestProcessTaskRetry(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("boom")}
	worker := NewSheetsWorker(db, sheets, nil, nil, RetryPolicy{MaxRetries: 3, InitialDelay: time.Hour, MaxDelay: time.Hour}, nil)
	ctx := context.Background()

	require.NoError(t, worker.EnqueueReservation(ctx, testReservation("res-2")))
	task, ok := worker.tryLocalQueue()
	require.True(t, ok)
	worker.processTask(ctx, &task)

	status, retryCount := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusRetry, status)
	assert.Equal(t, 1, retryCount)

	// Not due yet.
	pending, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestProcessTaskFail(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("fatal")}
	worker := NewSheetsWorker(db, sheets, nil, nil, RetryPolicy{MaxRetries: 1}, nil)
	ctx := context.Background()

	require.NoError(t, worker.EnqueueReservation(ctx, testReservation("res-3")))
	task, _ := worker.tryLocalQueue()
	worker.processTask(ctx, &task)

	status, _ := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusFailed, status)
}

func TestProcessTaskBadPayload(t *testing.T) {
	db := newTestDB(t)
	worker := NewSheetsWorker(db, &fakeSheets{}, nil, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	task := models.SyncTask{TaskType: TaskAppendReservation, Payload: "invalid json"}
	require.NoError(t, db.CreateSyncTask(ctx, &task))
	worker.processTask(ctx, &task)

	status, _ := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusFailed, status)
}

func TestSheetsWorker_EnqueueReservation_Invalid(t *testing.T) {
	worker := NewSheetsWorker(newTestDB(t), &fakeSheets{}, nil, nil, RetryPolicy{}, nil)
	assert.Error(t, worker.EnqueueReservation(context.Background(), nil))
	assert.Error(t, worker.EnqueueReservation(context.Background(), &models.Reservation{}))
}

func TestSheetsWorker_Resync(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	sheets := &fakeSheets{}

	r := testReservation("")
	r.SessionID = "cs_resync"
	created, err := db.TryInsert(ctx, r)
	require.NoError(t, err)
	require.True(t, created)

	worker := NewSheetsWorker(db, sheets, db, nil, RetryPolicy{}, nil)
	require.NoError(t, worker.EnqueueResync(ctx))
	task, ok := worker.tryLocalQueue()
	require.True(t, ok)
	assert.Equal(t, TaskReplaceAll, task.TaskType)
	worker.processTask(ctx, &task)

	assert.Equal(t, 1, sheets.replaceCalls)
	require.Len(t, sheets.replaced, 1)
	assert.Equal(t, r.ID, sheets.replaced[0].ID)

	noLister := NewSheetsWorker(db, sheets, nil, nil, RetryPolicy{}, nil)
	assert.Error(t, noLister.EnqueueResync(ctx))
}

func TestSheetsWorker_HandleSheetTask_Unknown(t *testing.T) {
	worker := NewSheetsWorker(nil, &fakeSheets{}, nil, nil, RetryPolicy{}, nil)
	err := worker.handleSheetTask(context.Background(), "delete", sheetTaskPayload{})
	assert.Error(t, err)

	err = worker.handleSheetTask(context.Background(), TaskAppendReservation, sheetTaskPayload{ReservationID: "x"})
	assert.Error(t, err)
}

func TestSheetsWorker_StartDrainsQueue(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(db, sheets, nil, nil, RetryPolicy{}, nil)
	worker.pollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	require.NoError(t, worker.EnqueueReservation(ctx, testReservation("res-a")))
	require.NoError(t, worker.EnqueueReservation(ctx, testReservation("res-b")))

	assert.Eventually(t, func() bool {
		return len(sheets.appendedIDs()) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestSheetsWorker_RedisQueueAndDeadLetter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("quota")}
	worker := NewSheetsWorker(db, sheets, nil, client, RetryPolicy{MaxRetries: 1}, nil)
	ctx := context.Background()

	require.NoError(t, worker.EnqueueReservation(ctx, testReservation("res-r")))
	_, ok := worker.tryLocalQueue()
	assert.False(t, ok, "redis should take the task")

	task, ok := worker.tryRedis(ctx)
	require.True(t, ok)
	assert.Equal(t, "res-r", task.ReservationID)

	worker.processTask(ctx, &task)
	n, err := client.LLen(ctx, "sheets:deadletter").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDecodePayload(t *testing.T) {
	decoded, err := decodePayload(`{"reservation_id":"abc","reservation":{"id":"abc","guests":2}}`)
	require.NoError(t, err)
	assert.Equal(t, "abc", decoded.ReservationID)
	require.NotNil(t, decoded.Reservation)
	assert.Equal(t, 2, decoded.Reservation.Guests)

	_, err = decodePayload(`invalid json`)
	assert.Error(t, err)
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
	assert.Equal(t, 5*time.Second, policy.NextDelay(5))
	assert.Equal(t, 5*time.Second, policy.NextDelay(200))
	assert.Equal(t, time.Second, policy.NextDelay(0))
	assert.Equal(t, time.Second, RetryPolicy{}.NextDelay(1))
}

func TestRetryPolicyDefaults(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3}.withDefaults()
	assert.Equal(t, 3, policy.MaxRetries)
	assert.Equal(t, DefaultRetryPolicy().InitialDelay, policy.InitialDelay)
	assert.False(t, policy.Exhausted(2))
	assert.True(t, policy.Exhausted(3))

	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(4*time.Second), policy.NextRunAt(now, 2))
}

// Helpers

type fakeSheets struct {
	mu           sync.Mutex
	err          error
	appended     []string
	replaceCalls int
	replaced     []*models.Reservation
}

func (f *fakeSheets) AppendReservation(ctx context.Context, r *models.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.appended = append(f.appended, r.ID)
	return nil
}

func (f *fakeSheets) ReplaceReservations(ctx context.Context, reservations []*models.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaceCalls++
	f.replaced = reservations
	return f.err
}

func (f *fakeSheets) appendedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.appended...)
}

func testReservation(id string) *models.Reservation {
	from := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	return &models.Reservation{
		ID:        id,
		From:      from,
		To:        from.AddDate(0, 0, 2),
		Guests:    2,
		Status:    models.StatusConfirmed,
		SessionID: "cs_" + id,
	}
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "worker.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func loadTaskStatus(t *testing.T, db *database.DB, id int64) (status string, retryCount int) {
	t.Helper()
	row := db.QueryRowContext(context.Background(), `SELECT status, retry_count FROM sync_queue WHERE id = ?`, id)
	require.NoError(t, row.Scan(&status, &retryCount))
	return status, retryCount
}
