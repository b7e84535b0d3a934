package diskbudget

import (
	"testing"

	"github.com/videoforge/videoforge/internal/models"
)

func TestEstimateOutputClampsToBounds(t *testing.T) {
	original := int64(1000)

	// av1 (0.4) * mp4 (1.0) * 480p (0.5) = 0.2, right at the floor.
	got := EstimateOutput(original, "av1", "mp4", "480p")
	if want := int64(200); got != want {
		t.Errorf("EstimateOutput() = %d, want %d (floor)", got, want)
	}

	// the largest multipliers in the tables, unknown codec (0.8) * mov
	// (1.1) * 4k (1.5) = 1.32, stay under the 1.5x ceiling unclamped.
	got = EstimateOutput(original, "unknown", "mov", "4k")
	if want := int64(1320); got != want {
		t.Errorf("EstimateOutput() = %d, want %d (below ceiling)", got, want)
	}
}

func TestEstimateOutputKnownCodec(t *testing.T) {
	got := EstimateOutput(1000, "h264", "mp4", "1080p")
	if want := int64(700); got != want {
		t.Errorf("EstimateOutput() = %d, want %d", got, want)
	}
}

func TestCheckSpaceRequiredIncludesTempBudget(t *testing.T) {
	c := New("/tmp", "/tmp", true, 1, 0, nil)
	check := c.CheckSpace(1000, 500, true)
	// required = 1000 + 500 + max(1000,500)*0.5 = 2000
	if check.Required != 2000 {
		t.Errorf("Required = %d, want 2000", check.Required)
	}
}

func TestCheckSpaceDisabledAlwaysHasEnough(t *testing.T) {
	c := New("/tmp", "/tmp", false, 0, 0, nil)
	check := c.CheckSpace(1<<40, 1<<40, true)
	if !check.HasEnough {
		t.Error("CheckSpace() with budget disabled should always have enough")
	}
}

func TestUpdateUsageNeverGoesNegative(t *testing.T) {
	c := New("/tmp", "/tmp", true, 10, 0, nil)
	c.UpdateUsage(-500, models.UsageOutputs)
	if c.GetStatus().UsedOutputs != 0 {
		t.Errorf("UsedOutputs = %d, want 0 (clamped)", c.GetStatus().UsedOutputs)
	}
}
