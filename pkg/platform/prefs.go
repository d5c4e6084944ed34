// Package platform supplies the device, locale and application facts
// carried in every blob header, and the small preference store they are
// cached in.
package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// DeviceIDKey is the preference key holding the per-device identifier.
const DeviceIDKey = "UserGUID"

// Preferences is a persistent string key/value store.
type Preferences interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// FilePreferences keeps preferences in a YAML mapping file.
type FilePreferences struct {
	path string
	mu   sync.Mutex
}

// NewFilePreferences returns preferences stored at path. The file is
// created on the first Set.
func NewFilePreferences(path string) *FilePreferences {
	return &FilePreferences{path: path}
}

// Path returns the backing file path.
func (p *FilePreferences) Path() string {
	return p.path
}

// Get returns the value stored under key.
func (p *FilePreferences) Get(key string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	values, err := p.load()
	if err != nil {
		return "", false, err
	}
	value, ok := values[key]
	return value, ok, nil
}

// Set stores value under key and rewrites the file.
func (p *FilePreferences) Set(key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	values, err := p.load()
	if err != nil {
		return err
	}
	values[key] = value

	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0700); err != nil {
		return fmt.Errorf("failed to create preferences directory: %w", err)
	}

	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace preferences: %w", err)
	}
	return nil
}

func (p *FilePreferences) load() (map[string]string, error) {
	values := make(map[string]string)

	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return values, nil
		}
		return nil, fmt.Errorf("failed to read preferences: %w", err)
	}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse preferences %s: %w", p.path, err)
	}
	if values == nil {
		values = make(map[string]string)
	}
	return values, nil
}

// DeviceID returns the per-device identifier, creating and storing one on
// first use.
func DeviceID(prefs Preferences) (string, error) {
	id, ok, err := prefs.Get(DeviceIDKey)
	if err != nil {
		return "", err
	}
	if ok && id != "" {
		return id, nil
	}

	id = uuid.NewString()
	if err := prefs.Set(DeviceIDKey, id); err != nil {
		return "", fmt.Errorf("failed to store device id: %w", err)
	}
	return id, nil
}
