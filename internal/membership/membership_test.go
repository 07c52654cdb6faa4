package membership

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestMemorySet(t *testing.T) {
	s := NewMemorySet("aaa")

	if !s.Contains("aaa") {
		t.Error("Contains(aaa) = false, want true")
	}
	if s.Add("aaa") {
		t.Error("Add(aaa) = true for existing member")
	}
	if !s.Add("bbb") {
		t.Error("Add(bbb) = false for new member")
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
	if err := s.Flush(); err != nil {
		t.Errorf("Flush() error = %v", err)
	}
}

func TestMemorySet_ConcurrentAdd(t *testing.T) {
	s := NewMemorySet()

	var wg sync.WaitGroup
	added := make(chan bool, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			added <- s.Add("same")
		}()
	}
	wg.Wait()
	close(added)

	wins := 0
	for ok := range added {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("Add() reported new %d times, want exactly 1", wins)
	}
}

func TestFileSet_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "processed_files.json")

	s, err := OpenFileSet(path)
	if err != nil {
		t.Fatalf("OpenFileSet() error = %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("Len() = %d for missing file, want 0", s.Len())
	}

	s.Add("bbb")
	s.Add("aaa")
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var stored []string
	if err := json.Unmarshal(data, &stored); err != nil {
		t.Fatalf("membership file is not a JSON array: %v", err)
	}
	if len(stored) != 2 || stored[0] != "aaa" || stored[1] != "bbb" {
		t.Errorf("stored = %v, want [aaa bbb]", stored)
	}

	reopened, err := OpenFileSet(path)
	if err != nil {
		t.Fatalf("OpenFileSet() error = %v", err)
	}
	if !reopened.Contains("aaa") || !reopened.Contains("bbb") {
		t.Error("reopened set lost members")
	}
}

func TestFileSet_FlushWithoutChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed_files.json")

	s, err := OpenFileSet(path)
	if err != nil {
		t.Fatalf("OpenFileSet() error = %v", err)
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Flush() of an unchanged set wrote a file")
	}
}

func TestFileSet_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed_files.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := OpenFileSet(path); err == nil {
		t.Fatal("OpenFileSet() expected error for corrupt file")
	}
}

func TestFileSet_FlushLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "processed_files.json")

	s, err := OpenFileSet(path)
	if err != nil {
		t.Fatalf("OpenFileSet() error = %v", err)
	}
	s.Add("aaa")
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want only the membership file", len(entries))
	}
}
