package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/mirrorsync/internal/core/domain"
)

func (s *Server) listSources(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.GetSources(c.Request.Context()))
}

func (s *Server) addSource(c *gin.Context) {
	var src domain.Source
	if err := c.ShouldBindJSON(&src); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.engine.AddSource(c.Request.Context(), src); err != nil {
		writeError(c, err)
		return
	}
	created, err := s.engine.GetSource(c.Request.Context(), src.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) getSource(c *gin.Context) {
	src, err := s.engine.GetSource(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, src)
}

func (s *Server) updateSource(c *gin.Context) {
	var src domain.Source
	if err := c.ShouldBindJSON(&src); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name := c.Param("name")
	if err := s.engine.UpdateSource(c.Request.Context(), name, src); err != nil {
		writeError(c, err)
		return
	}
	updated, err := s.engine.GetSource(c.Request.Context(), name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) removeSource(c *gin.Context) {
	if err := s.engine.RemoveSource(c.Request.Context(), c.Param("name")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) enableSource(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		if err := s.engine.EnableSource(c.Request.Context(), name, enabled); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"name": name, "enabled": enabled})
	}
}

func (s *Server) sourceStatus(c *gin.Context) {
	status, err := s.engine.GetSourceStatus(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) startSync(c *gin.Context) {
	id, err := s.engine.StartSync(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": id})
}

func (s *Server) listTasks(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.GetAllTaskStatus())
}

func (s *Server) getTask(c *gin.Context) {
	snap, ok := s.engine.GetTaskStatus(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) taskLogs(c *gin.Context) {
	logs, ok := s.engine.GetTaskLogs(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, logs)
}

// controlTask adapts a boolean control operation. A refused transition on a
// known task answers 409.
func (s *Server) controlTask(action string, op func(string) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if op(id) {
			snap, _ := s.engine.GetTaskStatus(id)
			c.JSON(http.StatusOK, snap)
			return
		}
		snap, ok := s.engine.GetTaskStatus(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{
			"error": fmt.Sprintf("cannot %s task in state %s", action, snap.Status),
		})
	}
}

func (s *Server) cleanupTasks(c *gin.Context) {
	keep, err := intQuery(c, "keep", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	removed := s.engine.CleanupCompletedTasks(keep)
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (s *Server) history(c *gin.Context) {
	limit, err := intQuery(c, "limit", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entries, err := s.engine.GetSyncHistory(c.Request.Context(), c.Query("source"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return n, nil
}

// writeError maps domain errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrUnsupportedType):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAlreadyExists), errors.Is(err, domain.ErrSourceDisabled),
		errors.Is(err, domain.ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrQueueFull), errors.Is(err, domain.ErrEngineClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
