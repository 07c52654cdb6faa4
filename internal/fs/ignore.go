package fs

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// IgnoreFileName is the per-folder file listing extra ignore patterns.
const IgnoreFileName = ".abignore"

// defaultIgnorePatterns are always applied regardless of config or .abignore.
// Android keeps generated previews in .thumbnails and marks files that are
// being written or trashed with .pending- and .trashed- prefixes.
var defaultIgnorePatterns = []string{IgnoreFileName, ".thumbnails/", ".trashed-*", ".pending-*"}

type ignoreRule struct {
	glob     string
	anchored bool // contains '/': matched against the path relative to the folder
	dirOnly  bool // trailing '/': matches directories only
}

// IgnoreMatcher decides which entries of a monitored folder the scanner skips.
//
// A pattern without '/' is matched against the entry's base name at any depth.
// A pattern containing '/' is matched against the whole relative path. A
// trailing '/' restricts the pattern to directories, whose contents are then
// skipped as well.
type IgnoreMatcher struct {
	rules []ignoreRule
}

// NewIgnoreMatcher builds a matcher from one or more pattern lists.
// Blank lines and lines starting with '#' are dropped.
func NewIgnoreMatcher(lists ...[]string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	for _, list := range lists {
		for _, raw := range list {
			raw = strings.TrimSpace(raw)
			if raw == "" || strings.HasPrefix(raw, "#") {
				continue
			}
			rule := ignoreRule{}
			if strings.HasSuffix(raw, "/") {
				rule.dirOnly = true
				raw = strings.TrimRight(raw, "/")
			}
			if raw == "" {
				continue
			}
			rule.glob = strings.TrimPrefix(raw, "/")
			rule.anchored = strings.Contains(raw, "/")
			m.rules = append(m.rules, rule)
		}
	}
	return m
}

// Len returns the number of usable patterns.
func (m *IgnoreMatcher) Len() int {
	return len(m.rules)
}

// Match reports whether the entry at rel, relative to the folder root, is ignored.
func (m *IgnoreMatcher) Match(rel string, isDir bool) bool {
	if rel == "" || rel == "." {
		return false
	}
	slashed := filepath.ToSlash(rel)
	base := filepath.Base(rel)

	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		subject := base
		if r.anchored {
			subject = slashed
		}
		// filepath.Match only fails on malformed patterns; those never match.
		if ok, err := filepath.Match(r.glob, subject); err == nil && ok {
			return true
		}
	}
	return false
}

// ReadIgnoreFile returns the raw lines of an ignore file. A missing file
// yields no lines and no error.
func ReadIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file %s: %w", path, err)
	}
	return lines, nil
}
