package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/fsnotify.v1"
)

// Change events passed to the OnChange callback.
const (
	EventCreate = "create"
	EventModify = "modify"
	EventRemove = "remove"
)

// Registry holds the profiles available to a run. The official profile is
// always present and cannot be replaced from disk.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	files    map[string]string
	dir      string
	logger   *zap.Logger

	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	done     chan struct{}
	onChange func(event string, profile *Profile)
}

// NewRegistry creates a registry holding only the built-in profiles.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := &Registry{logger: logger}
	registry.reset()
	return registry
}

func (registry *Registry) reset() {
	official := Official()
	registry.profiles = map[string]*Profile{official.Name: official}
	registry.files = make(map[string]string)
}

// Register adds or replaces a profile.
func (registry *Registry) Register(profile *Profile) error {
	if profile == nil {
		return fmt.Errorf("profile cannot be nil")
	}
	if err := profile.Validate(); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}
	if profile.Name == OfficialName && profile.Source != "" {
		return fmt.Errorf("profile %q is built in and cannot be redefined by %s", OfficialName, profile.Source)
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	if existing, ok := registry.profiles[profile.Name]; ok && existing.Source != profile.Source {
		return fmt.Errorf("profile %q already defined in %s", profile.Name, existing.Source)
	}
	registry.profiles[profile.Name] = profile
	if profile.Source != "" {
		registry.files[profile.Source] = profile.Name
	}
	return nil
}

// Get returns a profile by name.
func (registry *Registry) Get(name string) (*Profile, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	profile, ok := registry.profiles[name]
	return profile, ok
}

// List returns all profiles sorted by name.
func (registry *Registry) List() []*Profile {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	profiles := make([]*Profile, 0, len(registry.profiles))
	for _, profile := range registry.profiles {
		profiles = append(profiles, profile)
	}
	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].Name < profiles[j].Name
	})
	return profiles
}

// Count returns the number of profiles, built-ins included.
func (registry *Registry) Count() int {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	return len(registry.profiles)
}

// LoadDirectory loads every YAML profile in dir. A missing directory is
// not an error. Files that fail to load are reported together after the
// rest have been registered.
func (registry *Registry) LoadDirectory(dir string) error {
	registry.dir = dir

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to check profile directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read profile directory %s: %w", dir, err)
	}

	var loadErrors []string
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		if err := registry.LoadFile(filepath.Join(dir, entry.Name())); err != nil {
			loadErrors = append(loadErrors, fmt.Sprintf("%s: %v", entry.Name(), err))
		}
	}

	if len(loadErrors) > 0 {
		return fmt.Errorf("errors loading profiles: %s", strings.Join(loadErrors, "; "))
	}
	return nil
}

// LoadFile loads a single profile file.
func (registry *Registry) LoadFile(path string) error {
	profile, err := LoadProfileFile(path)
	if err != nil {
		return err
	}

	// A renamed profile leaves its old name behind.
	registry.mu.Lock()
	if previous, ok := registry.files[path]; ok && previous != profile.Name {
		delete(registry.profiles, previous)
	}
	registry.mu.Unlock()

	return registry.Register(profile)
}

// Reload drops every loaded profile and reads the directory again.
func (registry *Registry) Reload() error {
	if registry.dir == "" {
		return fmt.Errorf("no profile directory configured")
	}

	registry.mu.Lock()
	registry.reset()
	registry.mu.Unlock()

	return registry.LoadDirectory(registry.dir)
}

// OnChange sets the callback run after a watched file is applied. The
// profile is nil for removals.
func (registry *Registry) OnChange(fn func(event string, profile *Profile)) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.onChange = fn
}

// Watch starts reloading profiles as files in the directory change.
func (registry *Registry) Watch() error {
	if registry.dir == "" {
		return fmt.Errorf("no profile directory configured")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(registry.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", registry.dir, err)
	}

	registry.watcher = watcher
	registry.stopChan = make(chan struct{})
	registry.done = make(chan struct{})
	go registry.watchLoop()

	return nil
}

// StopWatch stops the watcher and waits for its goroutine to exit.
func (registry *Registry) StopWatch() {
	if registry.stopChan == nil {
		return
	}
	close(registry.stopChan)
	registry.watcher.Close()
	<-registry.done
	registry.stopChan = nil
}

func (registry *Registry) watchLoop() {
	defer close(registry.done)

	for {
		select {
		case <-registry.stopChan:
			return

		case event, ok := <-registry.watcher.Events:
			if !ok {
				return
			}
			if !isYAML(event.Name) {
				continue
			}

			switch {
			case event.Op&fsnotify.Create == fsnotify.Create:
				registry.handleFileChange(event.Name, EventCreate)
			case event.Op&fsnotify.Write == fsnotify.Write:
				registry.handleFileChange(event.Name, EventModify)
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				registry.handleFileRemove(event.Name)
			}

		case err, ok := <-registry.watcher.Errors:
			if !ok {
				return
			}
			registry.logger.Warn("profile watcher error", zap.Error(err))
		}
	}
}

func (registry *Registry) handleFileChange(path string, event string) {
	if err := registry.LoadFile(path); err != nil {
		registry.logger.Warn("failed to reload profile", zap.String("path", path), zap.Error(err))
		return
	}

	registry.mu.RLock()
	profile := registry.profiles[registry.files[path]]
	callback := registry.onChange
	registry.mu.RUnlock()

	registry.logger.Info("profile loaded", zap.String("event", event), zap.String("profile", profile.Name))
	if callback != nil {
		callback(event, profile)
	}
}

func (registry *Registry) handleFileRemove(path string) {
	registry.mu.Lock()
	name, ok := registry.files[path]
	if ok {
		delete(registry.files, path)
		delete(registry.profiles, name)
	}
	callback := registry.onChange
	registry.mu.Unlock()

	if !ok {
		return
	}
	registry.logger.Info("profile removed", zap.String("profile", name))
	if callback != nil {
		callback(EventRemove, nil)
	}
}

func isYAML(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}
