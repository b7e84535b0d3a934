package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/videoforge/videoforge/internal/apperr"
	"github.com/videoforge/videoforge/internal/diskbudget"
)

const diskspaceConfigKey = "diskspace.config"

type checkSpaceRequest struct {
	OriginalSize      int64  `json:"originalSize" binding:"required"`
	Codec             string `json:"codec"`
	Container         string `json:"container"`
	Resolution        string `json:"resolution"`
	IncludeTempBudget bool   `json:"includeTempBudget"`
}

func (s *Server) handleCheckSpace(c *gin.Context) {
	var req checkSpaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Wrap(apperr.Validation, "invalid request body", err))
		return
	}

	estOutput := diskbudget.EstimateOutput(req.OriginalSize, req.Codec, req.Container, req.Resolution)
	check := s.budget.CheckSpace(req.OriginalSize, estOutput, req.IncludeTempBudget)

	c.JSON(http.StatusOK, gin.H{
		"hasEnough":       check.HasEnough,
		"requiredSpace":   check.Required,
		"availableSpace":  check.Available,
		"estimatedOutput": estOutput,
	})
}

func (s *Server) handleDiskspaceUsage(c *gin.Context) {
	status := s.budget.GetStatus()
	c.JSON(http.StatusOK, gin.H{
		"totalBytes":     status.TotalBytes,
		"usedBytes":      status.UsedBytes,
		"availableBytes": status.AvailableBytes,
		"reservedBytes":  status.ReservedBytes,
		"usagePercent":   status.UsagePercent,
		"hasSufficient":  status.HasSufficient,
		"usedOriginals":  status.UsedOriginals,
		"usedOutputs":    status.UsedOutputs,
		"usedTemp":       status.UsedTemp,
		"enabled":        status.Enabled,
	})
}

type diskspaceConfig struct {
	MaxTotalSpaceGB int64 `json:"maxTotalSpaceGb"`
	ReservedSpaceGB int64 `json:"reservedSpaceGb"`
	Enabled         bool  `json:"enabled"`
}

func (s *Server) handleDiskspaceConfigGet(c *gin.Context) {
	var cfg diskspaceConfig
	found, err := s.settingsRepo.Get(diskspaceConfigKey, &cfg)
	if err != nil {
		respondError(c, apperr.Wrap(apperr.Fatal, "load disk space config", err))
		return
	}
	if !found {
		cfg = diskspaceConfig{
			MaxTotalSpaceGB: s.config.MaxTotalSpaceGB,
			ReservedSpaceGB: s.config.ReservedSpaceGB,
			Enabled:         s.config.DiskBudgetEnabled,
		}
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) handleDiskspaceConfigSet(c *gin.Context) {
	var cfg diskspaceConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		respondError(c, apperr.Wrap(apperr.Validation, "invalid request body", err))
		return
	}
	if err := s.settingsRepo.Set(diskspaceConfigKey, cfg); err != nil {
		respondError(c, apperr.Wrap(apperr.Fatal, "save disk space config", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
