package retention

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDirSize(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a"), []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b"), []byte("world!"), 0644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "nested")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "c"), []byte("!!"), 0644); err != nil {
		t.Fatal(err)
	}

	got := dirSize(dir)
	want := int64(len("hello") + len("world!") + len("!!"))
	if got != want {
		t.Errorf("dirSize() = %d, want %d", got, want)
	}
}

func TestNewResultCategories(t *testing.T) {
	r := newResult()
	for _, cat := range []string{"originals", "outputs", "temp", "logs"} {
		if _, ok := r.ByCategory[cat]; !ok {
			t.Errorf("missing category %q in fresh result", cat)
		}
	}
}

func TestAllScopes(t *testing.T) {
	s := AllScopes()
	if !s.Retention || !s.Temp || !s.Logs {
		t.Errorf("AllScopes() = %+v, want all true", s)
	}
}
