package api

import (
	"context"
	"io"
	"time"

	"bakery-orders/internal/service"
	"bakery-orders/internal/store"
	"bakery-orders/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminSnapshotter produces one admin dashboard refresh
type AdminSnapshotter interface {
	AdminOrders(ctx context.Context, q store.AdminOrderQuery) (*service.AdminSnapshot, error)
}

// AdminStreamer pushes periodic admin order snapshots over SSE so the
// dashboard never polls. Every connection is independent: it runs its own
// query on its own cadence, and its timers die with the connection.
type AdminStreamer struct {
	snapshots         AdminSnapshotter
	snapshotInterval  time.Duration
	heartbeatInterval time.Duration
	logger            *zap.Logger
}

// NewAdminStreamer creates a new admin order streamer
func NewAdminStreamer(snapshots AdminSnapshotter, snapshotInterval, heartbeatInterval time.Duration) *AdminStreamer {
	return &AdminStreamer{
		snapshots:         snapshots,
		snapshotInterval:  snapshotInterval,
		heartbeatInterval: heartbeatInterval,
		logger:            util.GetLogger(),
	}
}

// Stream is the GET /admin/orders/stream handler. It emits a snapshot
// immediately, then on every snapshot tick, with heartbeat events in between
// to keep intermediate hops from closing the connection. The stream is
// read-only over order state.
func (s *AdminStreamer) Stream(c *gin.Context) {
	q := parseAdminQuery(c)
	ctx := c.Request.Context()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	util.AdminStreamClients.Inc()
	defer util.AdminStreamClients.Dec()

	snapshotTicker := time.NewTicker(s.snapshotInterval)
	defer snapshotTicker.Stop()
	heartbeat := time.NewTicker(s.heartbeatInterval)
	defer heartbeat.Stop()

	first := true
	c.Stream(func(w io.Writer) bool {
		if first {
			first = false
			s.emitSnapshot(c, q)
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-heartbeat.C:
			c.SSEvent("heartbeat", time.Now().Unix())
			return true
		case <-snapshotTicker.C:
			s.emitSnapshot(c, q)
			return true
		}
	})
}

func (s *AdminStreamer) emitSnapshot(c *gin.Context, q store.AdminOrderQuery) {
	snapshot, err := s.snapshots.AdminOrders(c.Request.Context(), q)
	if err != nil {
		// Transient DB trouble: keep the stream alive, the next tick retries
		s.logger.Warn("Admin snapshot failed", zap.Error(err))
		return
	}
	c.SSEvent("snapshot", snapshot)
}
