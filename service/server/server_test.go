package server_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/soldrop/client"
	"github.com/brojonat/soldrop/service/airdrop"
	"github.com/brojonat/soldrop/service/metrics"
	natspkg "github.com/brojonat/soldrop/service/nats"
	"github.com/brojonat/soldrop/service/recipients"
	"github.com/brojonat/soldrop/service/server"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// storeSource serves a live recipients store.
type storeSource struct {
	store *recipients.Store
	phase airdrop.Phase
}

func (s *storeSource) Snapshot() airdrop.Snapshot {
	return airdrop.Snapshot{Phase: s.phase, Rows: s.store.Snapshot()}
}

func TestServer_Routes(t *testing.T) {
	store := recipients.NewDefaultStore()
	srv := server.New(":0", &storeSource{store: store}, nil, metrics.NewMetrics(prometheus.NewRegistry()), testLogger())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	c := client.NewClient(ts.URL, nil, nil)
	ctx := context.Background()

	require.NoError(t, c.Health(ctx))

	run, err := c.GetRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "idle", run.Phase)
	assert.Len(t, run.Rows, recipients.DefaultRowCount)
	assert.Equal(t, recipients.DefaultRowCount, run.Counts["idle"])

	row := store.Snapshot()[0]
	got, err := c.GetRow(ctx, row.ID.String())
	require.NoError(t, err)
	assert.Equal(t, row.ID.String(), got.ID)
	assert.False(t, got.Valid)

	_, err = c.GetRow(ctx, uuid.NewString())
	assert.ErrorIs(t, err, client.ErrNotFound)

	_, err = c.GetReport(ctx)
	assert.ErrorIs(t, err, client.ErrNotFound)

	// Without NATS the stream route is not registered.
	err = c.StreamRows(ctx, "", func(client.RowEvent) error { return nil })
	assert.ErrorIs(t, err, client.ErrNotFound)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_CORSPreflight(t *testing.T) {
	srv := server.New(":0", &storeSource{store: recipients.NewStore()}, nil, nil, testLogger())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	req, err := http.NewRequest("OPTIONS", ts.URL+"/api/v1/run", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	// Metrics endpoint is absent without a collector.
	resp2, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp2.Body.Close()
	io.Copy(io.Discard, resp2.Body)
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestServer_StartAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := server.New(ln.Addr().String(), &storeSource{store: recipients.NewStore()}, nil, nil, testLogger())
	errs := make(chan error, 1)
	go func() { errs <- srv.Serve(ln) }()

	c := client.NewClient("http://"+ln.Addr().String(), nil, nil)
	require.Eventually(t, func() bool { return c.Health(context.Background()) == nil }, 2*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, <-errs)
}

func TestServer_StreamRows(t *testing.T) {
	natspkg.SkipIfNoNATS(t)

	publisher, err := natspkg.NewPublisher(natspkg.TestNATSURL(), nil, testLogger())
	require.NoError(t, err)
	defer publisher.Close()

	sse, err := server.NewSSEPublisher(natspkg.TestNATSURL(), testLogger())
	require.NoError(t, err)

	srv := server.New(":0", &storeSource{store: recipients.NewStore()}, sse, nil, testLogger())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	defer srv.Shutdown(context.Background())

	runID := uuid.NewString()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	received := make(chan client.RowEvent, 1)
	go func() {
		client.NewClient(ts.URL, nil, nil).StreamRows(ctx, runID, func(ev client.RowEvent) error {
			received <- ev
			return context.Canceled
		})
	}()

	// The consumer only sees messages published after it subscribes.
	require.Eventually(t, func() bool {
		err := publisher.PublishRowEvent(ctx, &natspkg.RowEvent{
			RunID:       runID,
			RowID:       "row-1",
			State:       "succeeded",
			Signature:   "sig",
			PublishedAt: time.Now().UTC(),
		})
		require.NoError(t, err)
		select {
		case ev := <-received:
			assert.Equal(t, runID, ev.RunID)
			assert.Equal(t, "succeeded", ev.State)
			return true
		case <-time.After(200 * time.Millisecond):
			return false
		}
	}, 8*time.Second, 10*time.Millisecond)
}
