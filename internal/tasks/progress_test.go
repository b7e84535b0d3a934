package tasks

import "testing"

func TestParseProgressLine(t *testing.T) {
	tests := []struct {
		name         string
		line         string
		wantProgress int
		hasProgress  bool
		wantSpeed    float64
		hasSpeed     bool
		wantETA      int64
		hasETA       bool
	}{
		{
			name:         "full progress line",
			line:         "frame=120 time=4.50 progress=42% speed=1.8x eta=30",
			wantProgress: 42,
			hasProgress:  true,
			wantSpeed:    1.8,
			hasSpeed:     true,
			wantETA:      30,
			hasETA:       true,
		},
		{
			name:        "no recognizable fields",
			line:        "some unrelated log output",
			hasProgress: false,
			hasSpeed:    false,
			hasETA:      false,
		},
		{
			name:         "progress over 100 is clamped",
			line:         "progress=140%",
			wantProgress: 100,
			hasProgress:  true,
		},
		{
			name:         "progress without percent sign",
			line:         "progress: 17",
			wantProgress: 17,
			hasProgress:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseProgressLine(tt.line)
			if got.HasProgress != tt.hasProgress || (tt.hasProgress && got.Progress != tt.wantProgress) {
				t.Errorf("progress: got (%v,%d), want (%v,%d)", got.HasProgress, got.Progress, tt.hasProgress, tt.wantProgress)
			}
			if got.HasSpeed != tt.hasSpeed || (tt.hasSpeed && got.Speed != tt.wantSpeed) {
				t.Errorf("speed: got (%v,%v), want (%v,%v)", got.HasSpeed, got.Speed, tt.hasSpeed, tt.wantSpeed)
			}
			if got.HasETA != tt.hasETA || (tt.hasETA && got.ETASeconds != tt.wantETA) {
				t.Errorf("eta: got (%v,%v), want (%v,%v)", got.HasETA, got.ETASeconds, tt.hasETA, tt.wantETA)
			}
		})
	}
}

func TestClampPercent(t *testing.T) {
	cases := map[int]int{-5: 0, 0: 0, 50: 50, 100: 100, 101: 100}
	for in, want := range cases {
		if got := clampPercent(in); got != want {
			t.Errorf("clampPercent(%d) = %d, want %d", in, got, want)
		}
	}
}
