package api

import (
	"github.com/gin-gonic/gin"

	"github.com/videoforge/videoforge/internal/apperr"
)

// respondError renders any error through the stable apperr taxonomy,
// falling back to 500 for errors that never passed through apperr.
func respondError(c *gin.Context, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		c.JSON(500, gin.H{"error": err.Error(), "errorType": string(apperr.Fatal)})
		return
	}
	c.JSON(apperr.HTTPStatus(appErr.ErrType), gin.H{
		"error":     appErr.Message,
		"errorType": string(appErr.ErrType),
		"detail":    appErr.Detail,
	})
}
