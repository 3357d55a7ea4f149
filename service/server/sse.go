package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/walletglass/walletglass/service/metrics"
	"github.com/walletglass/walletglass/service/pipeline"
)

// sseKeepaliveInterval is how often a comment line is sent to hold idle
// proxies open while a long fetch phase produces no events.
const sseKeepaliveInterval = 10 * time.Second

// handleStreamAnalysis handles SSE streaming of a wallet analysis.
// GET /api/v1/stream/wallets/{address}
//
// Events carry monotonic IDs; a client reconnecting with a Last-Event-ID
// header resumes past the events it already received.
func handleStreamAnalysis(analyzer Analyzer, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			logger.Debug("invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		var lastEventID int64
		if raw := r.Header.Get("Last-Event-ID"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				writeError(w, "invalid Last-Event-ID", http.StatusBadRequest)
				return
			}
			lastEventID = id
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		flusher.Flush()

		logger.DebugContext(r.Context(), "SSE client connected",
			"wallet", address,
			"last_event_id", lastEventID,
			"remote_addr", r.RemoteAddr,
		)
		m.RecordSSEConnectionChange(address, 1)
		defer m.RecordSSEConnectionChange(address, -1)

		events := make(chan pipeline.Event, 16)
		streamDone := make(chan error, 1)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		go func() {
			streamDone <- analyzer.Stream(ctx, address, lastEventID, func(ev pipeline.Event) error {
				select {
				case events <- ev:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
			close(events)
		}()

		keepalive := time.NewTicker(sseKeepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				flusher.Flush()

			case ev, open := <-events:
				if !open {
					err := <-streamDone
					if err != nil && ctx.Err() == nil {
						logger.WarnContext(r.Context(), "analysis stream ended with error",
							"wallet", address,
							"error", err,
						)
					}
					return
				}
				if err := writeSSEEvent(w, ev); err != nil {
					logger.DebugContext(r.Context(), "SSE write failed",
						"wallet", address,
						"error", err,
					)
					cancel()
					return
				}
				flusher.Flush()
				m.RecordSSEEventSent(address, string(ev.Type))

			case <-r.Context().Done():
				logger.DebugContext(r.Context(), "SSE client disconnected",
					"wallet", address,
					"remote_addr", r.RemoteAddr,
				)
				return
			}
		}
	})
}

// writeSSEEvent frames one event: id, event and data lines followed by a
// blank line.
func writeSSEEvent(w http.ResponseWriter, ev pipeline.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, data)
	return err
}
