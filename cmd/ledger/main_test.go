package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"olympspa/internal/database"
	"olympspa/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cliEnv struct {
	dir        string
	configPath string
	dbPath     string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	env := &cliEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "config.yaml"),
		dbPath:     filepath.Join(dir, "data", "ledger.db"),
	}
	cfg := fmt.Sprintf(`
stripe:
  secret_key: sk_test_cli
  webhook_secret: whsec_cli
database:
  driver: sqlite
  path: %s
exports:
  path: %s
backup:
  storage_path: %s
  retention_days: 7
`, env.dbPath, filepath.Join(dir, "exports"), filepath.Join(dir, "backups"))
	require.NoError(t, os.WriteFile(env.configPath, []byte(cfg), 0o600))
	return env
}

func (e *cliEnv) seed(t *testing.T) {
	t.Helper()
	db, err := database.NewDB(e.dbPath, nil)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	from := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	_, err = db.TryInsert(ctx, &models.Reservation{From: from, To: from.AddDate(0, 0, 2), Guests: 2, SessionID: "cs_seed"})
	require.NoError(t, err)
	require.NoError(t, db.RecordConflict(ctx, &models.Conflict{
		SessionID: "cs_lost", EventID: "evt_lost", From: from, To: from.AddDate(0, 0, 1), Guests: 1, Reason: models.ConflictReasonOverlap,
	}))
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestListCmd(t *testing.T) {
	env := newCLIEnv(t)
	env.seed(t)

	out, err := env.run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "CHECK-IN")
	assert.Contains(t, out, "2024-07-01")
	assert.Contains(t, out, "cs_seed")

	out, err = env.run(t, "list", "--json")
	require.NoError(t, err)
	var reservations []*models.Reservation
	require.NoError(t, json.Unmarshal([]byte(out), &reservations))
	require.Len(t, reservations, 1)
	assert.Equal(t, 2, reservations[0].Guests)
}

func TestConflictsCmd(t *testing.T) {
	env := newCLIEnv(t)
	env.seed(t)

	out, err := env.run(t, "conflicts")
	require.NoError(t, err)
	assert.Contains(t, out, "cs_lost")
	assert.Contains(t, out, "evt_lost")
}

func TestCheckCmd(t *testing.T) {
	env := newCLIEnv(t)
	env.seed(t)

	out, err := env.run(t, "check", "--from", "2024-07-03", "--to", "2024-07-05")
	require.NoError(t, err)
	assert.Contains(t, out, "available")

	out, err = env.run(t, "check", "--from", "2024-07-02", "--to", "2024-07-05")
	assert.Error(t, err)
	assert.Contains(t, out, "unavailable")

	_, err = env.run(t, "check", "--from", "2024-07-05", "--to", "2024-07-02")
	assert.Error(t, err)
}

func TestExportCmd(t *testing.T) {
	env := newCLIEnv(t)
	env.seed(t)

	out, err := env.run(t, "export")
	require.NoError(t, err)
	path := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(path, filepath.Join(env.dir, "exports")))
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestMigrateCmd_SQLite(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "sqlite schema ready")
	_, err = os.Stat(env.dbPath)
	assert.NoError(t, err)
}

func TestBackupCmd(t *testing.T) {
	env := newCLIEnv(t)
	env.seed(t)

	out, err := env.run(t, "backup")
	require.NoError(t, err)
	path := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(path, filepath.Join(env.dir, "backups")))

	restored, err := database.NewDB(path, nil)
	require.NoError(t, err)
	defer restored.Close()
	all, err := restored.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMissingConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml"), "list"})
	cmd.SetOut(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
}

func TestProbeCmd(t *testing.T) {
	env := newCLIEnv(t)

	var ready atomic.Bool
	ready.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/readyz" || !ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}))
	defer srv.Close()

	out, err := env.run(t, "probe", "--url", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "ready")

	ready.Store(false)
	_, err = env.run(t, "probe", "--url", srv.URL)
	assert.Error(t, err)
}

func TestSyncFailuresCmd(t *testing.T) {
	env := newCLIEnv(t)

	db, err := database.NewDB(env.dbPath, nil)
	require.NoError(t, err)
	ctx := context.Background()
	task := &models.SyncTask{TaskType: "append_reservation", ReservationID: "res-9", Payload: "{}", Status: models.SyncStatusPending}
	require.NoError(t, db.CreateSyncTask(ctx, task))
	require.NoError(t, db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusFailed, "quota exceeded", nil))
	require.NoError(t, db.Close())

	out, err := env.run(t, "sync-failures")
	require.NoError(t, err)
	assert.Contains(t, out, "res-9")
	assert.Contains(t, out, "quota exceeded")

	out, err = env.run(t, "sync-failures", "--json")
	require.NoError(t, err)
	var tasks []models.SyncTask
	require.NoError(t, json.Unmarshal([]byte(out), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, models.SyncStatusFailed, tasks[0].Status)
}
