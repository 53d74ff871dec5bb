// Package api exposes the HTTP surface of the download gateway.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mediadl/dl-gateway/internal/engine"
	"github.com/mediadl/dl-gateway/internal/events"
	"github.com/mediadl/dl-gateway/internal/jobs"
	"github.com/mediadl/dl-gateway/internal/metrics"
	"github.com/mediadl/dl-gateway/internal/progress"
	"github.com/mediadl/dl-gateway/internal/storage"
	"github.com/mediadl/dl-gateway/pkg/types"
)

const listLimit = 50

// Options carries handler policy knobs.
type Options struct {
	HeartbeatInterval time.Duration
	// CleanupOnServe removes the job and its file after a successful
	// download through the file endpoint.
	CleanupOnServe bool
}

// Server holds the dependencies behind the HTTP handlers.
type Server struct {
	svc   *jobs.Service
	repo  jobs.Repository
	snaps progress.SnapshotStore
	bus   events.Bus
	eng   engine.Engine
	files *storage.Store
	opts  Options
}

// NewServer wires the handler dependencies.
func NewServer(svc *jobs.Service, repo jobs.Repository, snaps progress.SnapshotStore, bus events.Bus, eng engine.Engine, files *storage.Store, opts Options) *Server {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = time.Second
	}
	return &Server{
		svc:   svc,
		repo:  repo,
		snaps: snaps,
		bus:   bus,
		eng:   eng,
		files: files,
		opts:  opts,
	}
}

// Register mounts all routes on the router.
func (s *Server) Register(r *gin.Engine) {
	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	api.POST("/extract", s.extract)
	api.POST("/downloads", s.submit)
	api.GET("/downloads", s.list)
	api.GET("/downloads/:id", s.get)
	api.DELETE("/downloads/:id", s.remove)
	api.GET("/downloads/:id/progress", s.stream)
	api.GET("/downloads/:id/file", s.serveFile)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type extractRequest struct {
	URL string `json:"url" binding:"required"`
}

func (s *Server) extract(c *gin.Context) {
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url required"})
		return
	}

	info, err := s.eng.Extract(c.Request.Context(), req.URL)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": types.TruncateError(err.Error())})
		return
	}

	c.JSON(http.StatusOK, info)
}

type submitRequest struct {
	URL       string `json:"url" binding:"required"`
	FormatID  string `json:"format_id"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
}

func (s *Server) submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url required"})
		return
	}

	job, err := s.svc.Submit(c.Request.Context(), req.URL, req.FormatID, req.Title, req.Thumbnail)
	if err != nil {
		slog.Error("Failed to submit download", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start download"})
		return
	}

	c.JSON(http.StatusCreated, job)
}

func (s *Server) list(c *gin.Context) {
	listed, err := s.repo.List(c.Request.Context(), listLimit)
	if err != nil {
		slog.Error("Failed to list downloads", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list downloads"})
		return
	}
	if listed == nil {
		listed = []*types.Job{}
	}
	c.JSON(http.StatusOK, listed)
}

func (s *Server) get(c *gin.Context) {
	job, err := s.repo.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, jobs.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Download not found"})
		return
	}
	if err != nil {
		slog.Error("Failed to load download", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load download"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) remove(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	job, err := s.repo.Get(ctx, id)
	if errors.Is(err, jobs.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Download not found"})
		return
	}
	if err != nil {
		slog.Error("Failed to load download", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load download"})
		return
	}

	if job.OutputFilename != "" {
		if err := s.files.Remove(job.OutputFilename); err != nil {
			slog.Warn("Failed to remove output file", "job", id, "error", err)
		}
	}
	if err := s.snaps.Delete(ctx, id); err != nil {
		slog.Warn("Failed to remove progress snapshot", "job", id, "error", err)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		slog.Error("Failed to delete download", "job", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete download"})
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) serveFile(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	job, err := s.repo.Get(ctx, id)
	if err != nil && !errors.Is(err, jobs.ErrNotFound) {
		slog.Error("Failed to load download", "job", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load download"})
		return
	}
	if err != nil || job.Status != types.JobStatusCompleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not available"})
		return
	}

	path, err := s.files.Resolve(job.OutputFilename)
	if errors.Is(err, storage.ErrFileMissing) {
		c.JSON(http.StatusNotFound, gin.H{"error": "File no longer exists on disk"})
		return
	}
	if err != nil {
		slog.Error("Failed to resolve output file", "job", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to serve file"})
		return
	}

	c.FileAttachment(path, job.OutputFilename)

	// Serving marks the job for removal: once the transfer is done the
	// record, snapshot and file are gone.
	if s.opts.CleanupOnServe {
		if err := s.files.Remove(job.OutputFilename); err != nil {
			slog.Warn("Cleanup-on-serve failed to remove file", "job", id, "error", err)
		}
		if err := s.snaps.Delete(ctx, id); err != nil {
			slog.Warn("Cleanup-on-serve failed to remove snapshot", "job", id, "error", err)
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			slog.Warn("Cleanup-on-serve failed to remove record", "job", id, "error", err)
		}
	}
}
