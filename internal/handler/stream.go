package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/ezyeats/internal/domain/feed"
	"github.com/xenking/ezyeats/internal/domain/order"
)

const streamHeartbeat = 15 * time.Second

// streamOrders pushes the caller's sorted order list as server-sent events
// whenever it changes. The listener is released when the client goes away or
// CloseStreams is called.
func (h *Handler) streamOrders(w http.ResponseWriter, r *http.Request) {
	c, ok := customer(w, r)
	if !ok {
		return
	}
	filter, err := feed.ParseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		fail(w, r, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()

	// Only the latest snapshot matters; a slow client skips intermediate ones.
	updates := make(chan []order.Order, 1)
	unsubscribe, err := h.feed.Subscribe(ctx, c.ID, func(orders []order.Order) {
		select {
		case <-updates:
		default:
		}
		updates <- orders
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	lg := zctx.From(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.streams.Done():
			lg.Debug("Stream closed by shutdown")
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case orders := <-updates:
			var e jx.Encoder
			encodeOrders(&e, filter.Apply(orders))
			if _, err := fmt.Fprintf(w, "event: orders\ndata: %s\n\n", e.Bytes()); err != nil {
				lg.Debug("Stream write failed", zap.Error(err))
				return
			}
		}
		flusher.Flush()
	}
}
