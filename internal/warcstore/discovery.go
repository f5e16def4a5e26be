// Package warcstore locates and streams the WARC files a crawl job
// produced (spec §4.E).
package warcstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
)

// archiveState mirrors the subset of the crawler's .archive_state.json
// this package consumes: the list of temp directories it tracked
// during the crawl.
type archiveState struct {
	TempDirs []string `json:"tempDirs"`
}

// Discover locates every WARC file produced by the job at outputDir,
// deduplicated by absolute path, in stable sorted order (spec §4.E).
//
// It first reads .archive_state.json for the crawler's own list of
// temp directories, dropping any that no longer exist. If that list is
// empty (missing state file, or all entries gone) and allowFallback is
// true, it falls back to a filesystem scan for ".tmp*" directories
// directly under outputDir.
func Discover(outputDir string, allowFallback bool) ([]string, error) {
	tempDirs, err := readArchiveState(outputDir)
	if err != nil {
		return nil, err
	}
	tempDirs = existingDirs(tempDirs)

	if len(tempDirs) == 0 && allowFallback {
		tempDirs, err = scanForTempDirs(outputDir)
		if err != nil {
			return nil, err
		}
	}

	seen := map[string]struct{}{}
	var warcs []string
	for _, dir := range tempDirs {
		matches, err := filepath.Glob(filepath.Join(dir, "collections", "crawl-*", "archive", "*.warc.gz"))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			abs, err := filepath.Abs(m)
			if err != nil {
				continue
			}
			if _, ok := seen[abs]; ok {
				continue
			}
			seen[abs] = struct{}{}
			warcs = append(warcs, abs)
		}
	}

	sort.Strings(warcs)
	return warcs, nil
}

func readArchiveState(outputDir string) ([]string, error) {
	path := filepath.Join(outputDir, ".archive_state.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var state archiveState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, nil
	}
	return state.TempDirs, nil
}

func existingDirs(dirs []string) []string {
	var out []string
	for _, d := range dirs {
		if info, err := os.Stat(d); err == nil && info.IsDir() {
			out = append(out, d)
		}
	}
	return out
}

func scanForTempDirs(outputDir string) ([]string, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		matched, err := filepath.Match(".tmp*", e.Name())
		if err != nil {
			return nil, err
		}
		if matched {
			out = append(out, filepath.Join(outputDir, e.Name()))
		}
	}
	return out, nil
}
