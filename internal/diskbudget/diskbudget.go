// Package diskbudget implements the admission controller (C5): a
// quota-aware free-space model gating ingest and broadcasting live
// usage over the push bus.
package diskbudget

import (
	"context"
	"sync"
	"syscall"
	"time"

	"github.com/videoforge/videoforge/internal/cache"
	"github.com/videoforge/videoforge/internal/logger"
	"github.com/videoforge/videoforge/internal/models"
	"github.com/videoforge/videoforge/internal/pushbus"
)

// statusCacheKey is where the live usage snapshot is mirrored in Redis
// so a horizontally-scaled deployment's instances agree on usage
// without each one doing its own statfs pass.
const statusCacheKey = "videoforge:diskbudget:status"

const statusCacheTTL = 30 * time.Second

// codec compression ratios and container/resolution multipliers, per
// spec §4.5's EstimateOutput table.
var codecRatio = map[string]float64{
	"h264": 0.7,
	"hevc": 0.5,
	"h265": 0.5,
	"av1":  0.4,
	"vp9":  0.6,
}

const defaultCodecRatio = 0.8

var containerMultiplier = map[string]float64{
	"mp4":  1.0,
	"mkv":  1.05,
	"webm": 1.0,
	"mov":  1.1,
}

const defaultContainerMultiplier = 1.0

var resolutionMultiplier = map[string]float64{
	"480p":  0.5,
	"720p":  0.75,
	"1080p": 1.0,
	"1440p": 1.2,
	"4k":    1.5,
}

const defaultResolutionMultiplier = 1.0

// Controller tracks a cached usage snapshot behind a mutex, recomputed
// from the filesystem on demand and broadcast over the push bus on
// change.
type Controller struct {
	mu sync.RWMutex

	storagePath string
	tempPath    string

	enabled   bool
	maxBytes  int64
	reserved  int64

	usedOriginals int64
	usedOutputs   int64
	usedTemp      int64

	bus    *pushbus.Hub
	cache  *cache.RedisClient
	logger *logger.Logger
}

func New(storagePath, tempPath string, enabled bool, maxTotalGB, reservedGB int64, bus *pushbus.Hub) *Controller {
	return &Controller{
		storagePath: storagePath,
		tempPath:    tempPath,
		enabled:     enabled,
		maxBytes:    maxTotalGB << 30,
		reserved:    reservedGB << 30,
		bus:         bus,
		logger:      logger.NewLogger("DISKBUDGET"),
	}
}

// WithCache mirrors the usage snapshot in Redis on every broadcast, for
// deployments running more than one API instance against the same
// storage volume.
func (c *Controller) WithCache(rc *cache.RedisClient) *Controller {
	c.cache = rc
	return c
}

func (c *Controller) usedTotal() int64 {
	return c.usedOriginals + c.usedOutputs + c.usedTemp
}

// GetStatus returns the current snapshot per spec §4.5.
func (c *Controller) GetStatus() models.DiskBudgetStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	available := c.maxBytes - c.usedTotal() - c.reserved
	if available < 0 {
		available = 0
	}
	var pct float64
	if c.maxBytes > 0 {
		pct = float64(c.usedTotal()) / float64(c.maxBytes) * 100
	}

	return models.DiskBudgetStatus{
		TotalBytes:     c.maxBytes,
		UsedBytes:      c.usedTotal(),
		AvailableBytes: available,
		ReservedBytes:  c.reserved,
		UsagePercent:   pct,
		HasSufficient:  available > 0,
		UsedOriginals:  c.usedOriginals,
		UsedOutputs:    c.usedOutputs,
		UsedTemp:       c.usedTemp,
		Enabled:        c.enabled,
	}
}

type CheckResult struct {
	HasEnough bool
	Required  int64
	Available int64
	Detail    map[string]interface{}
}

// CheckSpace implements spec §4.5: required = original + estimated
// output + (include_temp ? max(original, estOutput)*0.5 : 0).
func (c *Controller) CheckSpace(originalSize, estimatedOutput int64, includeTemp bool) CheckResult {
	if !c.enabled {
		return CheckResult{HasEnough: true, Required: 0, Available: 1 << 62}
	}

	required := originalSize + estimatedOutput
	if includeTemp {
		larger := originalSize
		if estimatedOutput > larger {
			larger = estimatedOutput
		}
		required += int64(float64(larger) * 0.5)
	}

	c.mu.RLock()
	available := c.maxBytes - c.usedTotal() - c.reserved
	c.mu.RUnlock()
	if available < 0 {
		available = 0
	}

	return CheckResult{
		HasEnough: required <= available,
		Required:  required,
		Available: available,
		Detail: map[string]interface{}{
			"requiredSpace":  required,
			"availableSpace": available,
		},
	}
}

// EstimateOutput implements spec §4.5's EstimateOutput table, clamped
// to [0.2, 1.5] of the original size.
func EstimateOutput(originalSize int64, codec, container, resolution string) int64 {
	ratio, ok := codecRatio[codec]
	if !ok {
		ratio = defaultCodecRatio
	}
	cm, ok := containerMultiplier[container]
	if !ok {
		cm = defaultContainerMultiplier
	}
	rm, ok := resolutionMultiplier[resolution]
	if !ok {
		rm = defaultResolutionMultiplier
	}

	est := float64(originalSize) * ratio * cm * rm

	min := float64(originalSize) * 0.2
	max := float64(originalSize) * 1.5
	if est < min {
		est = min
	}
	if est > max {
		est = max
	}
	return int64(est)
}

// UpdateUsage adjusts the cached snapshot by delta in the given
// category and broadcasts the change.
func (c *Controller) UpdateUsage(delta int64, category models.UsageCategory) {
	c.mu.Lock()
	switch category {
	case models.UsageOriginals:
		c.usedOriginals += delta
	case models.UsageOutputs:
		c.usedOutputs += delta
	case models.UsageTemp:
		c.usedTemp += delta
	}
	if c.usedOriginals < 0 {
		c.usedOriginals = 0
	}
	if c.usedOutputs < 0 {
		c.usedOutputs = 0
	}
	if c.usedTemp < 0 {
		c.usedTemp = 0
	}
	c.mu.Unlock()

	c.broadcast()
}

// Refresh recomputes usage from the filesystem (via statfs) when drift
// is suspected, rather than trusting accumulated deltas.
func (c *Controller) Refresh(ctx context.Context) error {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(c.storagePath, &stat); err != nil {
		return err
	}

	usedOnDisk := int64(stat.Blocks-stat.Bfree) * int64(stat.Bsize)

	c.mu.Lock()
	// Keep the category breakdown as tracked by UpdateUsage, but
	// reconcile the total used figure against the real filesystem so
	// drift from missed deltas self-heals.
	tracked := c.usedTotal()
	if usedOnDisk != tracked && usedOnDisk >= 0 {
		c.usedTemp += usedOnDisk - tracked
		if c.usedTemp < 0 {
			c.usedTemp = 0
		}
	}
	c.mu.Unlock()

	c.broadcast()
	return nil
}

func (c *Controller) broadcast() {
	status := c.GetStatus()

	if c.cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := c.cache.Set(ctx, statusCacheKey, status, statusCacheTTL); err != nil {
			c.logger.Error("mirror disk usage to cache", err)
		}
		cancel()
	}

	if c.bus == nil {
		return
	}
	c.bus.Publish(pushbus.TopicSpace, pushbusEventFor(status))
}

func pushbusEventFor(status models.DiskBudgetStatus) pushbus.Event {
	return pushbus.Event{
		Type: pushbus.EventDiskSpaceUpdate,
		Data: pushbus.DiskSpaceUpdate{
			TotalBytes:     status.TotalBytes,
			UsedBytes:      status.UsedBytes,
			AvailableBytes: status.AvailableBytes,
			UsagePercent:   status.UsagePercent,
		},
	}
}

// StartPeriodicRefresh runs Refresh on an interval until ctx is done.
func (c *Controller) StartPeriodicRefresh(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.logger.Error("refresh disk usage", err)
			}
		}
	}
}
