package fs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewIgnoreMatcher(t *testing.T) {
	t.Run("drops blank lines and comments", func(t *testing.T) {
		m := NewIgnoreMatcher([]string{"", "  ", "# comment", "*.log", "/"})
		if m.Len() != 1 {
			t.Fatalf("Len() = %d, want 1", m.Len())
		}
	})

	t.Run("merges several lists", func(t *testing.T) {
		m := NewIgnoreMatcher([]string{"*.log"}, nil, []string{"cache/", "Sub/private"})
		if m.Len() != 3 {
			t.Fatalf("Len() = %d, want 3", m.Len())
		}
		r := m.rules[1]
		if !r.dirOnly || r.anchored || r.glob != "cache" {
			t.Errorf("cache/ parsed as %+v", r)
		}
		if !m.rules[2].anchored {
			t.Error("Sub/private should be matched against the relative path")
		}
	})
}

func TestIgnoreMatcher_Match(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		rel      string
		isDir    bool
		want     bool
	}{
		{"glob on base name at top level", []string{"*.tmp"}, "a.tmp", false, true},
		{"glob on base name in subfolder", []string{"*.tmp"}, filepath.Join("Camera", "a.tmp"), false, true},
		{"glob misses other extension", []string{"*.tmp"}, "a.jpg", false, false},
		{"anchored pattern matches relative path", []string{"Sub/private"}, filepath.Join("Sub", "private"), true, true},
		{"anchored pattern misses other parent", []string{"Sub/private"}, filepath.Join("Other", "private"), true, false},
		{"leading slash anchors to the root", []string{"/cache"}, "cache", true, true},
		{"directory pattern matches directory", []string{"cache/"}, "cache", true, true},
		{"directory pattern ignores files", []string{"cache/"}, "cache", false, false},
		{"character class", []string{"IMG_[0-9]*.jpg"}, "IMG_2024.jpg", false, true},
		{"malformed pattern never matches", []string{"[unclosed"}, "[unclosed", false, false},
		{"empty relative path", []string{"*"}, "", false, false},
		{"no patterns", nil, "anything.jpg", false, false},
		{"ignore file itself", defaultIgnorePatterns, IgnoreFileName, false, true},
		{"android thumbnail directory", defaultIgnorePatterns, filepath.Join("DCIM", ".thumbnails"), true, true},
		{"android trashed file", defaultIgnorePatterns, ".trashed-1700000000-IMG_1.jpg", false, true},
		{"android pending file", defaultIgnorePatterns, filepath.Join("Download", ".pending-1700000000-doc.pdf"), false, true},
		{"defaults keep ordinary photos", defaultIgnorePatterns, filepath.Join("Camera", "IMG_1.jpg"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewIgnoreMatcher(tt.patterns)
			if got := m.Match(tt.rel, tt.isDir); got != tt.want {
				t.Errorf("Match(%q, %v) = %v, want %v", tt.rel, tt.isDir, got, tt.want)
			}
		})
	}
}

func TestReadIgnoreFile(t *testing.T) {
	t.Run("returns raw lines", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), IgnoreFileName)
		if err := os.WriteFile(path, []byte("*.tmp\n# old exports\n\nexports/\n"), 0644); err != nil {
			t.Fatal(err)
		}

		lines, err := ReadIgnoreFile(path)
		if err != nil {
			t.Fatalf("ReadIgnoreFile() error: %v", err)
		}
		if len(lines) != 4 {
			t.Fatalf("got %d lines, want 4", len(lines))
		}
		if n := NewIgnoreMatcher(lines).Len(); n != 2 {
			t.Errorf("matcher kept %d patterns, want 2", n)
		}
	})

	t.Run("missing file is empty", func(t *testing.T) {
		lines, err := ReadIgnoreFile(filepath.Join(t.TempDir(), IgnoreFileName))
		if err != nil {
			t.Fatalf("ReadIgnoreFile() error: %v", err)
		}
		if lines != nil {
			t.Errorf("lines = %v, want nil", lines)
		}
	})
}
