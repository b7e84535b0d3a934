package tasks

import (
	"testing"

	"github.com/videoforge/videoforge/internal/models"
)

func TestDeriveOutputPathUsesRequestedContainer(t *testing.T) {
	e := &Engine{}
	task := &models.Task{
		ID:               "task-1",
		ArtifactPath:     "/data/artifacts/sess1/input.mov",
		OriginalFileName: "input.mov",
		Params:           map[string]interface{}{"container": "mkv"},
	}

	path, format := e.deriveOutputPath(task)
	if format != "mkv" {
		t.Errorf("format = %q, want mkv", format)
	}
	if want := "/data/artifacts/sess1/task-1.out.mkv"; path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
}

func TestDeriveOutputPathDefaultsToMP4(t *testing.T) {
	e := &Engine{}
	task := &models.Task{
		ID:               "task-2",
		ArtifactPath:     "/data/artifacts/sess2/input.avi",
		OriginalFileName: "input.avi",
		Params:           map[string]interface{}{},
	}

	_, format := e.deriveOutputPath(task)
	if format != "mp4" {
		t.Errorf("format = %q, want mp4", format)
	}
}

func TestBuildArgsSubstitutesTemplate(t *testing.T) {
	e := &Engine{argsTmpl: "-i {input} -c:v {codec} {output}"}

	got := e.buildArgs("/tmp/in.mp4", "/tmp/out.mp4", map[string]interface{}{"codec": "vp9"})
	want := []string{"-i", "/tmp/in.mp4", "-c:v", "vp9", "/tmp/out.mp4"}

	if len(got) != len(want) {
		t.Fatalf("buildArgs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("buildArgs()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBuildArgsDefaultsCodecToH264(t *testing.T) {
	e := &Engine{argsTmpl: "-c:v {codec}"}

	got := e.buildArgs("/tmp/in.mp4", "/tmp/out.mp4", map[string]interface{}{})
	want := []string{"-c:v", "h264"}

	if len(got) != len(want) || got[1] != "h264" {
		t.Errorf("buildArgs() = %v, want %v", got, want)
	}
}

func TestPathBase(t *testing.T) {
	if got := pathBase("/a/b/c.mp4"); got != "c.mp4" {
		t.Errorf("pathBase() = %q, want c.mp4", got)
	}
	if got := pathBase("plain.mp4"); got != "plain.mp4" {
		t.Errorf("pathBase() = %q, want plain.mp4", got)
	}
}
