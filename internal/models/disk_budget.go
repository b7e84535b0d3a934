package models

// UsageCategory partitions used bytes per spec §3's Disk Budget breakdown.
type UsageCategory string

const (
	UsageOriginals UsageCategory = "originals"
	UsageOutputs   UsageCategory = "outputs"
	UsageTemp      UsageCategory = "temp"
)

// DiskBudgetStatus is the snapshot returned by GetStatus and broadcast
// over the push bus on change.
type DiskBudgetStatus struct {
	TotalBytes    int64 `json:"totalBytes"`
	UsedBytes     int64 `json:"usedBytes"`
	AvailableBytes int64 `json:"availableBytes"`
	ReservedBytes int64 `json:"reservedBytes"`
	UsagePercent  float64 `json:"usagePercent"`
	HasSufficient bool  `json:"hasSufficient"`

	UsedOriginals int64 `json:"usedOriginals"`
	UsedOutputs   int64 `json:"usedOutputs"`
	UsedTemp      int64 `json:"usedTemp"`

	Enabled bool `json:"enabled"`
}
