package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/videoforge/videoforge/internal/database"
)

func (s *Server) handleTaskList(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	pageSize, _ := strconv.Atoi(c.Query("pageSize"))

	tasks, total, err := s.engine.List(database.ListFilter{
		Status:   c.Query("status"),
		Search:   c.Query("search"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]gin.H, 0, len(tasks))
	for _, t := range tasks {
		items = append(items, gin.H{
			"taskId":           t.ID,
			"taskName":         t.Name,
			"status":           t.Status,
			"progress":         t.Progress,
			"originalFileName": t.OriginalFileName,
			"outputFileName":   t.OutputFileName,
			"createdAt":        t.CreatedAt,
			"completedAt":      t.CompletedAt,
			"failureReason":    t.FailureReason,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"items":    items,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

func (s *Server) handleTaskDelete(c *gin.Context) {
	taskID := c.Param("taskId")
	if err := s.engine.Delete(taskID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
