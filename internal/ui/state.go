package ui

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// StateVersion is the schema version written with every [SessionState].
const StateVersion = 1

// Preferences are user choices that survive state expiry.
type Preferences struct {
	ShowRemote  bool `json:"show_remote"`  // list remote playlists that are not imported
	ConfirmSync bool `json:"confirm_sync"` // ask before writing to Spotify
}

// DefaultPreferences returns the preferences of a first run.
func DefaultPreferences() Preferences {
	return Preferences{ShowRemote: true, ConfirmSync: true}
}

// SessionState is the navigation state the TUI restores between runs.
//
// It is loaded once on start and written back whenever it changes. State saved longer ago than the
// configured max age is discarded on load, except for [Preferences].
type SessionState struct {
	Version     int         `json:"version"`
	SavedAt     time.Time   `json:"saved_at"`
	View        ViewState   `json:"view"`
	SelectedID  string      `json:"selected_id,omitempty"`
	Preferences Preferences `json:"preferences"`

	path   string
	maxAge time.Duration
	now    func() time.Time
}

// NewSessionState returns empty state with default preferences that saves to path.
func NewSessionState(path string, maxAge time.Duration) *SessionState {
	return &SessionState{
		Version:     StateVersion,
		Preferences: DefaultPreferences(),
		path:        path,
		maxAge:      maxAge,
		now:         time.Now,
	}
}

// LoadState reads the state saved at path.
//
// A missing file yields fresh state. Expired state and state written with another schema version are reset,
// keeping preferences. A file that cannot be decoded yields fresh state together with the decode error so the
// caller can report it and carry on.
func LoadState(path string, maxAge time.Duration) (*SessionState, error) {
	return loadState(path, maxAge, time.Now)
}

func loadState(path string, maxAge time.Duration, now func() time.Time) (*SessionState, error) {
	state := NewSessionState(path, maxAge)
	state.now = now

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("failed to read session state: %w", err)
	}

	var saved SessionState
	if err := json.Unmarshal(data, &saved); err != nil {
		return state, fmt.Errorf("failed to decode session state: %w", err)
	}

	state.Preferences = saved.Preferences
	if saved.Version != StateVersion || state.Expired(saved.SavedAt) {
		return state, nil
	}

	state.SavedAt = saved.SavedAt
	state.View = saved.View
	state.SelectedID = saved.SelectedID
	return state, nil
}

// Expired reports whether state saved at savedAt is older than the max age.
func (s *SessionState) Expired(savedAt time.Time) bool {
	if savedAt.IsZero() {
		return true
	}
	return s.maxAge > 0 && s.now().Sub(savedAt) > s.maxAge
}

// Reset clears navigation state and keeps preferences.
func (s *SessionState) Reset() {
	s.View = EntryListView
	s.SelectedID = ""
}

// Save writes the state to its path, replacing the previous file atomically.
func (s *SessionState) Save() error {
	if s.path == "" {
		return nil
	}
	s.Version = StateVersion
	s.SavedAt = s.now()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write session state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace session state: %w", err)
	}
	return nil
}
