package music

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cantina-works/cantinaos/pkg/player"
	playermock "github.com/cantina-works/cantinaos/pkg/player/mock"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("audio"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func scanTestLibrary(t *testing.T, names ...string) *Library {
	t.Helper()
	dir := t.TempDir()
	writeFiles(t, dir, names...)
	backend := &playermock.Backend{Info: player.TrackInfo{Duration: 3 * time.Minute}}
	lib, _, err := ScanLibrary(context.Background(), backend, []string{dir})
	if err != nil {
		t.Fatalf("ScanLibrary: %v", err)
	}
	return lib
}

func TestScanLibrary_FiltersAndOrders(t *testing.T) {
	lib := scanTestLibrary(t, "Cantina Band.mp3", "Utinni.wav", "Mad About Mad About Me.m4a", "notes.txt", "cover.jpg")

	if lib.Len() != 3 {
		t.Fatalf("len = %d, want 3 (non-audio filtered)", lib.Len())
	}
	// Sorted scan order: Cantina Band, Mad About..., Utinni.
	tracks := lib.Tracks()
	if tracks[0].Name != "Cantina Band" || tracks[2].Name != "Utinni" {
		t.Errorf("order = %q .. %q", tracks[0].Name, tracks[2].Name)
	}
	if tracks[0].Duration != 3*time.Minute {
		t.Errorf("duration = %s, want probed 3m", tracks[0].Duration)
	}
}

func TestScanLibrary_FallbackDirectories(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	real := t.TempDir()
	writeFiles(t, real, "track.mp3")

	backend := &playermock.Backend{}
	lib, dir, err := ScanLibrary(context.Background(), backend, []string{missing, real})
	if err != nil {
		t.Fatalf("ScanLibrary: %v", err)
	}
	if dir != real {
		t.Errorf("selected dir = %q, want fallback %q", dir, real)
	}
	if lib.Len() != 1 {
		t.Errorf("len = %d, want 1", lib.Len())
	}
}

func TestResolve_ByIndex(t *testing.T) {
	lib := scanTestLibrary(t, "Alpha.mp3", "Beta.mp3", "Gamma.mp3")

	track, err := lib.Resolve("2")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if track.Name != "Beta" {
		t.Errorf("track = %q, want Beta (1-based index)", track.Name)
	}

	if _, err := lib.Resolve("4"); err == nil {
		t.Error("out-of-range index accepted")
	}
	if _, err := lib.Resolve("0"); err == nil {
		t.Error("index 0 accepted")
	}
}

func TestResolve_ExactNameCaseInsensitive(t *testing.T) {
	lib := scanTestLibrary(t, "Cantina Band.mp3")

	track, err := lib.Resolve("cantina band")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if track.Name != "Cantina Band" {
		t.Errorf("track = %q", track.Name)
	}
}

func TestResolve_FuzzyMatch(t *testing.T) {
	lib := scanTestLibrary(t, "Cantina Band.mp3", "Utinni.mp3")

	track, err := lib.Resolve("cantina bnd")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if track.Name != "Cantina Band" {
		t.Errorf("fuzzy match = %q, want Cantina Band", track.Name)
	}
}

func TestResolve_NoMatchRejected(t *testing.T) {
	lib := scanTestLibrary(t, "Cantina Band.mp3")

	if _, err := lib.Resolve("xzqwv"); err == nil {
		t.Error("nonsense query matched a track")
	}
	if _, err := lib.Resolve(""); err == nil {
		t.Error("empty query matched a track")
	}
}

func TestInstall_CopiesOnlyUnknownAudioFiles(t *testing.T) {
	src := t.TempDir()
	lib := t.TempDir()
	writeFiles(t, src, "new.mp3", "existing.mp3", "readme.txt")
	writeFiles(t, lib, "existing.mp3")

	copied, err := Install(src, lib)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if copied != 1 {
		t.Errorf("copied = %d, want 1", copied)
	}
	if _, err := os.Stat(filepath.Join(lib, "new.mp3")); err != nil {
		t.Error("new.mp3 not installed")
	}
	if _, err := os.Stat(filepath.Join(lib, "readme.txt")); err == nil {
		t.Error("non-audio file installed")
	}
}
