// Package settings persists the list of managed library folders.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/gofrs/flock"
)

// Settings is the on-disk document.
type Settings struct {
	ManagedFolders []string `json:"managed_folders"`
}

// Provider reads and writes the settings file as a whole. A sibling lock file
// serializes writers across processes.
type Provider struct {
	path string
	lock *flock.Flock
	mu   sync.Mutex
}

func NewProvider(path string) *Provider {
	return &Provider{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

func (p *Provider) Path() string {
	return p.path
}

// ManagedFolders returns the managed folders in their saved order. A missing
// or malformed file yields an empty list.
func (p *Provider) ManagedFolders() ([]string, error) {
	s, err := p.Load()
	if err != nil {
		return nil, err
	}
	return s.ManagedFolders, nil
}

func (p *Provider) Load() (*Settings, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureDir(); err != nil {
		return nil, err
	}
	if err := p.lock.RLock(); err != nil {
		return nil, fmt.Errorf("lock settings: %w", err)
	}
	defer p.lock.Unlock()

	return p.read()
}

// Save replaces the managed folder list.
func (p *Provider) Save(folders []string) error {
	return p.Update(func(s *Settings) error {
		s.ManagedFolders = folders
		return nil
	})
}

// Update applies fn to the current settings and writes the result atomically.
func (p *Provider) Update(fn func(*Settings) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureDir(); err != nil {
		return err
	}
	if err := p.lock.Lock(); err != nil {
		return fmt.Errorf("lock settings: %w", err)
	}
	defer p.lock.Unlock()

	s, err := p.read()
	if err != nil {
		return err
	}
	if err := fn(s); err != nil {
		return err
	}
	s.ManagedFolders = dedupe(s.ManagedFolders)
	return p.write(s)
}

func (p *Provider) ensureDir() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}
	return nil
}

func (p *Provider) read() (*Settings, error) {
	s := &Settings{ManagedFolders: []string{}}
	data, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if err := json.Unmarshal(data, s); err != nil {
		return &Settings{ManagedFolders: []string{}}, nil
	}
	if s.ManagedFolders == nil {
		s.ManagedFolders = []string{}
	}
	return s, nil
}

func (p *Provider) write(s *Settings) error {
	data, err := json.MarshalIndent(s, "", "    ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p.path), ".settings-*")
	if err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

func dedupe(folders []string) []string {
	out := make([]string, 0, len(folders))
	for _, f := range folders {
		if f == "" || slices.Contains(out, f) {
			continue
		}
		out = append(out, f)
	}
	return out
}
