package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/videoforge/videoforge/internal/retention"
)

// handleCleanup triggers an on-demand sweep, per spec §4.8's
// "cleanup/{type}" operator endpoint. ignoreRetention lets an operator
// force a sweep past tasks whose scheduled cleanup time hasn't arrived
// yet, same as the emergency-threshold path takes automatically.
func (s *Server) handleCleanup(c *gin.Context) {
	jobType := c.Param("type")
	ignoreRetention := c.Query("ignoreRetention") == "true"

	var (
		result interface{}
		err    error
	)
	if jobType == "retention" && ignoreRetention {
		result, err = s.retention.PerformCleanup(retention.Scope{Retention: true}, true)
	} else {
		result, err = s.retention.TriggerJob(jobType)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}
