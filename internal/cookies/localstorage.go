package cookies

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

const defaultScanWindow = 512

// LevelDBDir is a Chromium profile's "Local Storage/leveldb" directory.
type LevelDBDir struct {
	Label string
	Path  string
}

// LocalStorageQuery locates a token stored under Marker. The nearest Pattern
// match within Window bytes after each marker occurrence is a candidate.
type LocalStorageQuery struct {
	Marker  string
	Pattern *regexp.Regexp
	Window  int
}

type TokenMatch struct {
	Token   string
	Source  string
	File    string
	ModTime time.Time
}

type segment struct {
	path    string
	modTime time.Time
}

// ScanLocalStorage looks for the token in every directory and returns at most
// one match per directory, newest first. Segments are read newest first and
// the first segment with a hit decides; within a segment the last match wins
// because LevelDB appends updates.
func ScanLocalStorage(ctx context.Context, dirs []LevelDBDir, q LocalStorageQuery) []TokenMatch {
	if q.Marker == "" || q.Pattern == nil {
		return nil
	}
	window := q.Window
	if window <= 0 {
		window = defaultScanWindow
	}

	var out []TokenMatch
	for _, dir := range dirs {
		if ctx.Err() != nil {
			break
		}
		for _, seg := range segments(dir.Path) {
			data, err := os.ReadFile(seg.path)
			if err != nil {
				continue
			}
			if token := lastMatch(data, []byte(q.Marker), q.Pattern, window); token != "" {
				out = append(out, TokenMatch{Token: token, Source: dir.Label, File: seg.path, ModTime: seg.modTime})
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ModTime.After(out[j].ModTime) })
	return out
}

func segments(dir string) []segment {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var segs []segment
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasSuffix(name, ".log") || strings.HasSuffix(name, ".ldb")) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		segs = append(segs, segment{path: filepath.Join(dir, name), modTime: info.ModTime()})
	}
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].modTime.After(segs[j].modTime) })
	return segs
}

func lastMatch(data, marker []byte, pattern *regexp.Regexp, window int) string {
	var last string
	for off := 0; off < len(data); {
		idx := bytes.Index(data[off:], marker)
		if idx < 0 {
			break
		}
		start := off + idx + len(marker)
		end := min(start+window, len(data))
		if m := pattern.Find(data[start:end]); m != nil {
			last = string(m)
		}
		off = start
	}
	return last
}
