package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mediadl/dl-gateway/internal/metrics"
	"github.com/mediadl/dl-gateway/pkg/types"
)

// stream serves GET /api/downloads/:id/progress as Server-Sent Events.
//
// The subscription is opened before the stored snapshot is replayed, so an
// event published between the two is never lost (at worst it is delivered
// twice, which holds under latest-value-wins). Unknown job ids subscribe and
// heartbeat rather than erroring; only the job endpoints 404.
func (s *Server) stream(c *gin.Context) {
	jobID := c.Param("id")
	ctx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	sub, err := s.bus.Subscribe(ctx, jobID)
	if err != nil {
		slog.Error("Failed to subscribe to progress channel", "job", jobID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open stream"})
		return
	}
	defer sub.Close()

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	c.Writer.WriteHeader(http.StatusOK)

	// Replay the latest known snapshot so late joiners see state
	// immediately.
	if snap, err := s.snaps.Get(ctx, jobID); err == nil {
		s.sendSnapshot(c, flusher, *snap)
		if snap.Status.IsTerminal() {
			return
		}
	}

	heartbeat := time.NewTicker(s.opts.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			s.sendEvent(c, flusher, types.EventHeartbeat, "")
		case snap, ok := <-sub.Events():
			if !ok {
				return
			}
			s.sendSnapshot(c, flusher, snap)
			if snap.Status.IsTerminal() {
				return
			}
			heartbeat.Reset(s.opts.HeartbeatInterval)
		}
	}
}

func (s *Server) sendSnapshot(c *gin.Context, flusher http.Flusher, snap types.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		slog.Error("Failed to marshal progress snapshot", "job", snap.JobID, "error", err)
		return
	}
	s.sendEvent(c, flusher, types.EventProgress, string(data))
}

func (s *Server) sendEvent(c *gin.Context, flusher http.Flusher, event, data string) {
	fmt.Fprintf(c.Writer, "event: %s\n", event)
	fmt.Fprintf(c.Writer, "data: %s\n\n", data)
	flusher.Flush()
}
