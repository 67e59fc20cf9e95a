package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/coolbeans/election2016/pkg/ballot"
)

const officialYAML = `name: statute
description: same rules as the act
choice: prefer_below
counts:
  - kind: min_above
    value: 1
  - kind: min_below
    value: 6
`

const strictYAML = `name: strict
choice: strict
counts:
  - kind: min_above
    value: 1
`

func writeProfile(t *testing.T, dir string, name string, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

func TestParseProfileMatchesOfficial(t *testing.T) {
	profile, err := ParseProfile([]byte(officialYAML))
	if err != nil {
		t.Fatalf("ParseProfile() error = %v", err)
	}

	constraints, err := profile.Constraints()
	if err != nil {
		t.Fatalf("Constraints() error = %v", err)
	}
	if diff := cmp.Diff(ballot.OfficialConstraints(), constraints); diff != "" {
		t.Errorf("Constraints() mismatch (-want +got):\n%s", diff)
	}
}

func TestOfficialRoundTrip(t *testing.T) {
	data, err := Official().ToYAML()
	if err != nil {
		t.Fatalf("ToYAML() error = %v", err)
	}
	profile, err := ParseProfile(data)
	if err != nil {
		t.Fatalf("ParseProfile() error = %v", err)
	}
	if profile.Name != OfficialName {
		t.Errorf("Name = %q, want %q", profile.Name, OfficialName)
	}
	if got := profile.String(); got != "official: prefer_below [min_above(1) min_below(6)]" {
		t.Errorf("String() = %q", got)
	}
}

func TestParseProfileErrors(t *testing.T) {
	testCases := []struct {
		name     string
		yaml     string
		contains string
	}{
		{"not yaml", "name: [", "failed to parse"},
		{"missing name", "choice: strict\n", "name is required"},
		{"bad choice", "name: x\nchoice: sideways\n", "sideways"},
		{"bad kind", "name: x\nchoice: strict\ncounts:\n  - kind: min_middle\n    value: 1\n", "count 1"},
		{"negative count", "name: x\nchoice: strict\ncounts:\n  - kind: min_below\n    value: -2\n", "profile \"x\""},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := ParseProfile([]byte(testCase.yaml))
			if err == nil {
				t.Fatal("ParseProfile() should fail")
			}
			if !strings.Contains(err.Error(), testCase.contains) {
				t.Errorf("error = %q, want it to contain %q", err, testCase.contains)
			}
		})
	}
}

func TestRegistryBuiltins(t *testing.T) {
	registry := NewRegistry(nil)

	if registry.Count() != 1 {
		t.Errorf("Count() = %d, want 1", registry.Count())
	}
	if _, ok := registry.Get(OfficialName); !ok {
		t.Error("official profile missing")
	}
	if err := registry.Reload(); err == nil {
		t.Error("Reload() without a directory should fail")
	}
	if err := registry.Watch(); err == nil {
		t.Error("Watch() without a directory should fail")
	}
}

func TestRegistryLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "statute.yaml", officialYAML)
	writeProfile(t, dir, "strict.yml", strictYAML)
	writeProfile(t, dir, "notes.txt", "ignored")

	registry := NewRegistry(nil)
	if err := registry.LoadDirectory(dir); err != nil {
		t.Fatalf("LoadDirectory() error = %v", err)
	}

	var names []string
	for _, profile := range registry.List() {
		names = append(names, profile.Name)
	}
	if diff := cmp.Diff([]string{"official", "statute", "strict"}, names); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}

	strict, _ := registry.Get("strict")
	if strict.Source != filepath.Join(dir, "strict.yml") {
		t.Errorf("Source = %q", strict.Source)
	}
}

func TestRegistryLoadDirectoryErrors(t *testing.T) {
	registry := NewRegistry(nil)
	if err := registry.LoadDirectory(filepath.Join(t.TempDir(), "missing")); err != nil {
		t.Errorf("LoadDirectory(missing) error = %v, want nil", err)
	}

	dir := t.TempDir()
	writeProfile(t, dir, "good.yaml", strictYAML)
	writeProfile(t, dir, "bad.yaml", "name: bad\nchoice: sideways\n")
	writeProfile(t, dir, "official.yaml", "name: official\nchoice: strict\n")

	err := registry.LoadDirectory(dir)
	if err == nil {
		t.Fatal("LoadDirectory() should report bad files")
	}
	if !strings.Contains(err.Error(), "bad.yaml") || !strings.Contains(err.Error(), "official.yaml") {
		t.Errorf("error = %q, want both bad files named", err)
	}
	if _, ok := registry.Get("strict"); !ok {
		t.Error("good profile was not loaded alongside bad ones")
	}
	official, _ := registry.Get(OfficialName)
	if official.Choice != "prefer_below" {
		t.Errorf("official profile was replaced: %+v", official)
	}
}

func TestRegistryDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "a.yaml", strictYAML)
	writeProfile(t, dir, "b.yaml", strictYAML)

	registry := NewRegistry(nil)
	if err := registry.LoadDirectory(dir); err == nil {
		t.Error("LoadDirectory() should reject a name defined twice")
	}
}

func TestRegistryLoadFileRename(t *testing.T) {
	dir := t.TempDir()
	path := writeProfile(t, dir, "p.yaml", strictYAML)

	registry := NewRegistry(nil)
	if err := registry.LoadFile(path); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	writeProfile(t, dir, "p.yaml", strings.Replace(strictYAML, "name: strict", "name: renamed", 1))
	if err := registry.LoadFile(path); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if _, ok := registry.Get("strict"); ok {
		t.Error("old name still registered after rename")
	}
	if _, ok := registry.Get("renamed"); !ok {
		t.Error("new name not registered")
	}
}

func TestRegistryWatch(t *testing.T) {
	dir := t.TempDir()
	registry := NewRegistry(nil)
	if err := registry.LoadDirectory(dir); err != nil {
		t.Fatalf("LoadDirectory() error = %v", err)
	}

	events := make(chan string, 16)
	registry.OnChange(func(event string, profile *Profile) {
		events <- event
	})
	if err := registry.Watch(); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer registry.StopWatch()

	path := writeProfile(t, dir, "strict.yaml", strictYAML)
	waitFor(t, func() bool {
		_, ok := registry.Get("strict")
		return ok
	})

	if err := os.Remove(path); err != nil {
		t.Fatalf("failed to remove %s: %v", path, err)
	}

	timeout := time.After(5 * time.Second)
	for {
		select {
		case event := <-events:
			if event == EventRemove {
				if _, ok := registry.Get("strict"); ok {
					t.Error("removed profile still registered")
				}
				return
			}
		case <-timeout:
			t.Fatal("OnChange was not told about the removal")
		}
	}
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("timed out waiting for the watcher")
}
