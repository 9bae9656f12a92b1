package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/brojonat/soldrop/service/metrics"
	natspkg "github.com/brojonat/soldrop/service/nats"
)

// SSEPublisher manages Server-Sent Events connections for row streaming.
type SSEPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewSSEPublisher creates a new SSE publisher that subscribes to NATS internally.
func NewSSEPublisher(natsURL string, logger *slog.Logger) (*SSEPublisher, error) {
	nc, js, err := natspkg.Connect(natsURL, "soldrop-sse-publisher")
	if err != nil {
		return nil, err
	}

	logger.Info("SSE publisher initialized", "nats_url", natsURL)

	return &SSEPublisher{
		nc:     nc,
		js:     js,
		logger: logger,
	}, nil
}

// Close closes the NATS connection.
func (p *SSEPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("SSE publisher closed")
	}
	return nil
}

// streamSubject picks the subject filter for an optional run id.
func streamSubject(runID string) (subject, desc string) {
	if runID == "" {
		return natspkg.StreamSubjects, "all runs"
	}
	return natspkg.Subject(runID), runID
}

// sseWriter writes Server-Sent Events and flushes after each one.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, _ := w.(http.Flusher)
	return &sseWriter{w: w, flusher: flusher}
}

func (s *sseWriter) flush() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

func (s *sseWriter) event(name string, data []byte) {
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data)
	s.flush()
}

func (s *sseWriter) comment(text string) {
	fmt.Fprintf(s.w, ": %s\n\n", text)
	s.flush()
}

// handleStreamRows streams row transitions as SSE "row" events.
// GET /api/v1/stream/rows?run_id={run_id}
// Without run_id every run is streamed.
func handleStreamRows(publisher *SSEPublisher, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		subject, runDesc := streamSubject(r.URL.Query().Get("run_id"))

		sse := newSSEWriter(w)
		sse.flush()

		m.RecordSSEConnectionChange(1)
		defer m.RecordSSEConnectionChange(-1)

		logger.DebugContext(ctx, "SSE client connected",
			"run", runDesc,
			"remote_addr", r.RemoteAddr,
		)

		// Ephemeral consumer for this connection, new messages only.
		cons, err := publisher.js.CreateOrUpdateConsumer(ctx, natspkg.StreamName, jetstream.ConsumerConfig{
			FilterSubject: subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			DeliverPolicy: jetstream.DeliverNewPolicy,
		})
		if err != nil {
			logger.ErrorContext(ctx, "failed to create consumer", "run", runDesc, "error", err)
			sse.event("error", []byte(`{"error": "failed to subscribe"}`))
			return
		}

		msgs := make(chan jetstream.Msg, 10)
		cc, err := cons.Consume(func(msg jetstream.Msg) {
			select {
			case msgs <- msg:
			case <-ctx.Done():
			}
		})
		if err != nil {
			logger.ErrorContext(ctx, "failed to start consuming messages", "error", err)
			sse.event("error", []byte(`{"error": "failed to subscribe"}`))
			return
		}
		defer cc.Stop()

		connected, _ := json.Marshal(map[string]string{"run": runDesc})
		sse.event("connected", connected)

		keepalive := time.NewTicker(10 * time.Second)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				sse.comment("keepalive")

			case msg := <-msgs:
				msg.Ack()
				var event natspkg.RowEvent
				if err := json.Unmarshal(msg.Data(), &event); err != nil {
					logger.WarnContext(ctx, "dropping malformed row event", "subject", msg.Subject(), "error", err)
					continue
				}
				sse.event("row", msg.Data())
				m.RecordSSEEventSent("row")

				logger.DebugContext(ctx, "sent row event",
					"run_id", event.RunID,
					"row_id", event.RowID,
					"state", event.State,
				)

			case <-ctx.Done():
				logger.DebugContext(ctx, "SSE client disconnected",
					"run", runDesc,
					"remote_addr", r.RemoteAddr,
				)
				return
			}
		}
	})
}
