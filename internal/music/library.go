// Package music implements the library and playback controller for the
// cantina's track collection: directory scanning, query resolution, a
// single-player playback slot with speech ducking, and progress reporting.
package music

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/cantina-works/cantinaos/pkg/player"
)

// minMatchScore is the Jaro-Winkler floor below which a fuzzy name match is
// rejected rather than guessed.
const minMatchScore = 0.75

// Track is one playable entry in the library.
type Track struct {
	// Name is the file name without extension, used for display and
	// matching.
	Name string

	// Path is the absolute file path.
	Path string

	// Duration as reported by the playback backend's probe. Zero when
	// unknown.
	Duration time.Duration
}

// Library is the ordered track collection. Tracks keep insertion order so
// 1-based index queries are stable across a session.
type Library struct {
	tracks []Track
	byName map[string]int
}

// audioExtensions lists the file types the scanner accepts.
var audioExtensions = map[string]bool{
	".mp3": true,
	".wav": true,
	".m4a": true,
}

// ScanLibrary walks the given directories in order, probing every audio
// file through the backend, and returns the populated library. The first
// directory that exists wins; later paths are fallbacks. Files that fail to
// probe are included with zero duration.
func ScanLibrary(ctx context.Context, backend player.Backend, dirs []string) (*Library, string, error) {
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		lib, err := scanDir(ctx, backend, dir)
		if err != nil {
			return nil, "", err
		}
		return lib, dir, nil
	}
	return &Library{byName: map[string]int{}}, "", nil
}

func scanDir(ctx context.Context, backend player.Backend, dir string) (*Library, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("music: reading library dir: %w", err)
	}

	// Directory order is filesystem-dependent; sort for a stable
	// insertion order so track numbers mean the same thing every start.
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if audioExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	lib := &Library{byName: make(map[string]int, len(names))}
	for _, name := range names {
		path := filepath.Join(dir, name)
		track := Track{
			Name: strings.TrimSuffix(name, filepath.Ext(name)),
			Path: path,
		}
		if info, err := backend.Probe(ctx, path); err == nil {
			track.Duration = info.Duration
		}
		lib.byName[strings.ToLower(track.Name)] = len(lib.tracks)
		lib.tracks = append(lib.tracks, track)
	}
	return lib, nil
}

// Tracks returns the library in insertion order.
func (l *Library) Tracks() []Track {
	return l.tracks
}

// Len returns the number of tracks.
func (l *Library) Len() int {
	return len(l.tracks)
}

// Resolve finds a track for the query: a 1-based index into insertion
// order, an exact case-insensitive name, or the best fuzzy name match above
// the score floor.
func (l *Library) Resolve(query string) (Track, error) {
	query = strings.TrimSpace(query)
	if query == "" || len(l.tracks) == 0 {
		return Track{}, fmt.Errorf("music: no track matches %q", query)
	}

	if n, err := strconv.Atoi(query); err == nil {
		if n < 1 || n > len(l.tracks) {
			return Track{}, fmt.Errorf("music: track number %d out of range 1..%d", n, len(l.tracks))
		}
		return l.tracks[n-1], nil
	}

	if idx, ok := l.byName[strings.ToLower(query)]; ok {
		return l.tracks[idx], nil
	}

	best := -1
	bestScore := 0.0
	for i, t := range l.tracks {
		score := matchr.JaroWinkler(strings.ToLower(query), strings.ToLower(t.Name), false)
		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	if best < 0 || bestScore < minMatchScore {
		return Track{}, fmt.Errorf("music: no track matches %q", query)
	}
	return l.tracks[best], nil
}

// Install copies audio files from srcDir into libDir, skipping files that
// already exist, and returns how many were copied. The caller rescans
// afterwards.
func Install(srcDir, libDir string) (int, error) {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return 0, fmt.Errorf("music: reading install source: %w", err)
	}

	copied := 0
	for _, e := range entries {
		if e.IsDir() || !audioExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		dst := filepath.Join(libDir, e.Name())
		if _, err := os.Stat(dst); err == nil {
			continue
		}
		if err := copyFile(filepath.Join(srcDir, e.Name()), dst); err != nil {
			return copied, err
		}
		copied++
	}
	return copied, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("music: opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("music: creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("music: copying %s: %w", src, err)
	}
	return out.Close()
}
