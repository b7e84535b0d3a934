package api

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/videoforge/videoforge/internal/apperr"
)

func (s *Server) handleConversionStatus(c *gin.Context) {
	taskID := c.Param("taskId")

	t, err := s.engine.GetStatus(taskID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"taskId":           t.ID,
		"taskName":         t.Name,
		"status":           t.Status,
		"progress":         t.Progress,
		"speed":            t.SpeedMultiplier,
		"eta":              t.ETASeconds,
		"currentPosition":  t.CurrentPosition,
		"originalFileName": t.OriginalFileName,
		"outputFileName":   t.OutputFileName,
		"failureReason":    t.FailureReason,
		"createdAt":        t.CreatedAt,
		"startedAt":        t.StartedAt,
		"completedAt":      t.CompletedAt,
	})
}

func (s *Server) handleConversionCancel(c *gin.Context) {
	taskID := c.Param("taskId")

	ok, err := s.engine.Cancel(taskID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !ok {
		respondError(c, apperr.New(apperr.Validation, "task is not in a cancellable state"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleConversionDownload(c *gin.Context) {
	taskID := c.Param("taskId")

	t, err := s.engine.GetStatus(taskID)
	if err != nil {
		respondError(c, err)
		return
	}
	if t.OutputPath == "" {
		respondError(c, apperr.New(apperr.Validation, "task has no output file yet"))
		return
	}

	c.FileAttachment(t.OutputPath, t.OutputFileName)

	size := int64(0)
	if info, err := os.Stat(t.OutputPath); err == nil {
		size = info.Size()
	}
	clientID := ownerID(c)
	go func() {
		if err := s.retention.RegisterDownload(taskID, t.OutputFileName, size, clientID); err != nil {
			s.logger.Error("register download for retention", err)
		}
	}()
}
