// Package profile persists tuning parameter sets as JSON files and reads
// and writes the LinuxCNC INI section they came from.
package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Profile is one saved parameter set
type Profile struct {
	Name      string             `json:"name"`
	Timestamp time.Time          `json:"timestamp"`
	Params    map[string]float64 `json:"params"`
	Notes     string             `json:"notes"`
}

// invalidFilenameChars are stripped from profile names before they become
// filenames
var invalidFilenameChars = regexp.MustCompile(`[^\w\-. ]`)

// Store saves and loads profiles under one directory
type Store struct {
	dir string
}

// NewStore creates the profile directory if needed. An empty dir defaults
// to ~/.spindle_tuner_profiles.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("error finding home dir: %w", err)
		}
		dir = filepath.Join(home, ".spindle_tuner_profiles")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating profile dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(name string) string {
	clean := invalidFilenameChars.ReplaceAllString(name, "_")
	clean = strings.TrimSpace(clean)
	if clean == "" {
		clean = "unnamed"
	}
	return filepath.Join(s.dir, clean+".json")
}

// Save writes the profile, stamping it with the current time
func (s *Store) Save(p Profile) error {
	if p.Name == "" {
		return fmt.Errorf("profile needs a name")
	}
	p.Timestamp = time.Now()

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding profile: %w", err)
	}
	if err := os.WriteFile(s.path(p.Name), data, 0o644); err != nil {
		return fmt.Errorf("error writing profile: %w", err)
	}
	return nil
}

// Load reads one profile by name
func (s *Store) Load(name string) (Profile, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		return Profile{}, fmt.Errorf("error reading profile %q: %w", name, err)
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("error decoding profile %q: %w", name, err)
	}
	return p, nil
}

// List returns all saved profiles, newest first
func (s *Store) List() ([]Profile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("error listing profiles: %w", err)
	}

	var profiles []Profile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		var p Profile
		if err := json.Unmarshal(data, &p); err != nil {
			continue
		}
		profiles = append(profiles, p)
	}

	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].Timestamp.After(profiles[j].Timestamp)
	})
	return profiles, nil
}

// Delete removes one profile by name
func (s *Store) Delete(name string) error {
	if err := os.Remove(s.path(name)); err != nil {
		return fmt.Errorf("error deleting profile %q: %w", name, err)
	}
	return nil
}
