package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoposter/internal/domain"
)

type fakeAutomationCounter struct {
	due int64
	err error
}

func (f *fakeAutomationCounter) CountDue(ctx context.Context, now time.Time) (int64, error) {
	return f.due, f.err
}

type fakeQueueCounter struct {
	counts map[domain.ContentStatus]int64
	err    error
}

func (f *fakeQueueCounter) CountByStatus(ctx context.Context) (map[domain.ContentStatus]int64, error) {
	return f.counts, f.err
}

type fakePool struct {
	busy int64
	size int
}

func (f *fakePool) Busy() int64 { return f.busy }
func (f *fakePool) Size() int   { return f.size }

func newTestServer(automations *fakeAutomationCounter, items *fakeQueueCounter, pool *fakePool) *Server {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewServer(":0", nil, automations, items, pool, logger)
}

func TestHealth_OK(t *testing.T) {
	srv := newTestServer(&fakeAutomationCounter{}, &fakeQueueCounter{}, &fakePool{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err := srv.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestStats_Snapshot(t *testing.T) {
	srv := newTestServer(
		&fakeAutomationCounter{due: 4},
		&fakeQueueCounter{counts: map[domain.ContentStatus]int64{
			domain.ContentScheduled: 12,
			domain.ContentPosting:   2,
			domain.ContentPosted:    340,
		}},
		&fakePool{busy: 2, size: 10},
	)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	resp, err := srv.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats domain.QueueStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))

	assert.Equal(t, int64(4), stats.DueAutomations)
	assert.Equal(t, int64(12), stats.QueueDepth["scheduled"])
	assert.Equal(t, int64(2), stats.QueueDepth["posting"])
	assert.Equal(t, int64(340), stats.QueueDepth["posted"])
	assert.Equal(t, int64(2), stats.BusyWorkers)
	assert.Equal(t, 10, stats.PoolSize)
}

func TestStats_StoreErrorReturns500(t *testing.T) {
	srv := newTestServer(
		&fakeAutomationCounter{err: errors.New("db down")},
		&fakeQueueCounter{},
		&fakePool{},
	)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	resp, err := srv.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
