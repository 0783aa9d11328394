// Package agent implements agent profiles, bounded conversation history,
// and the turn engine that drives the action loop.
package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/slashbot/slashbot/internal/paths"
)

// Profile is one agent's persistent identity and settings. Stored as a
// JSON file per agent under ~/.slashbot/agents/.
type Profile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Model       string `json:"model,omitempty"`
	Personality string `json:"personality,omitempty"`
	WorkDir     string `json:"workDir,omitempty"`
	// Lane distinguishes orchestrator agents (delegate and verify only)
	// from worker agents (produce concrete evidence).
	Lane               string    `json:"lane,omitempty"` // "orchestrator" or "worker"
	MaxContextMessages int       `json:"maxContextMessages,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
}

const defaultMaxContextMessages = 40

// NewProfile creates a profile with generated id and defaults applied.
func NewProfile(name, workDir string) *Profile {
	return &Profile{
		ID:                 uuid.NewString(),
		Name:               name,
		WorkDir:            workDir,
		Lane:               "worker",
		MaxContextMessages: defaultMaxContextMessages,
		CreatedAt:          time.Now().UTC(),
	}
}

// ProfileStore persists agent profiles to disk and caches them in memory.
type ProfileStore struct {
	mu       sync.RWMutex
	dir      string
	profiles map[string]*Profile // by id
}

// NewProfileStore loads every profile from the agents directory.
func NewProfileStore() (*ProfileStore, error) {
	dir, err := paths.AgentsDir()
	if err != nil {
		return nil, err
	}
	return NewProfileStoreAt(dir)
}

// NewProfileStoreAt loads profiles from an explicit directory.
func NewProfileStoreAt(dir string) (*ProfileStore, error) {
	s := &ProfileStore{dir: dir, profiles: map[string]*Profile{}}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		var p Profile
		if err := json.Unmarshal(data, &p); err != nil || p.ID == "" {
			continue
		}
		s.profiles[p.ID] = &p
	}
	return s, nil
}

// Get returns a profile by id.
func (s *ProfileStore) Get(id string) (*Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	return p, ok
}

// ByName returns the first profile with a matching name.
func (s *ProfileStore) ByName(name string) (*Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.profiles {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// List returns all profiles ordered by creation time.
func (s *ProfileStore) List() []*Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Save persists a profile atomically (temp file + rename) and caches it.
func (s *ProfileStore) Save(p *Profile) error {
	if p.ID == "" {
		return fmt.Errorf("profile has no id")
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	target := filepath.Join(s.dir, p.ID+".json")
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, target); err != nil {
		return err
	}
	s.mu.Lock()
	s.profiles[p.ID] = p
	s.mu.Unlock()
	return nil
}

// Delete removes a profile from disk and cache.
func (s *ProfileStore) Delete(id string) error {
	s.mu.Lock()
	delete(s.profiles, id)
	s.mu.Unlock()
	err := os.Remove(filepath.Join(s.dir, id+".json"))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
