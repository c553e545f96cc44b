// Package checkpoint persists export progress so an interrupted run can
// resume without refetching completed units of work.
package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spiffcs/devexport/internal/constants"
	"github.com/spiffcs/devexport/internal/fileutil"
	"github.com/spiffcs/devexport/internal/log"
	"github.com/spiffcs/devexport/internal/model"
)

// State is the lifecycle of a run with respect to its checkpoint.
type State int

const (
	StateFresh State = iota
	StateResuming
	StateRunning
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateResuming:
		return "resuming"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Scope is the configuration a checkpoint is bound to.
type Scope struct {
	Owners  []string `json:"owners"`
	Repos   []string `json:"repos,omitempty"`
	Since   string   `json:"since"`
	Tracker string   `json:"tracker,omitempty"`
}

// Fingerprint hashes the normalized scope. Owner and repo order and case
// do not matter.
func (s Scope) Fingerprint() string {
	norm := Scope{
		Owners:  normalizeList(s.Owners),
		Repos:   normalizeList(s.Repos),
		Since:   s.Since,
		Tracker: strings.TrimSpace(s.Tracker),
	}
	data, _ := json.Marshal(norm)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return out
}

// Checkpoint is the on-disk progress document. Units holds the full output
// of every completed unit; a unit id appears in CompletedUnits only
// together with its output.
type Checkpoint struct {
	Version        int                `json:"version"`
	Fingerprint    string             `json:"fingerprint"`
	Scope          Scope              `json:"scope"`
	CompletedUnits []string           `json:"completedUnits"`
	Units          []model.UnitResult `json:"units"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// Manager loads, saves and clears the checkpoint at one path.
type Manager struct {
	path      string
	createdAt time.Time
	now       func() time.Time
}

// NewManager creates a manager for the checkpoint file at path.
func NewManager(path string) *Manager {
	if path == "" {
		path = constants.DefaultCheckpointFile
	}
	return &Manager{path: path, now: time.Now}
}

// Path returns the checkpoint file path.
func (m *Manager) Path() string {
	return m.path
}

// Read returns the checkpoint on disk, or nil when none exists.
func (m *Manager) Read() (*Checkpoint, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint: %w", err)
	}
	return &cp, nil
}

// Begin returns the checkpoint to resume from for scope. A missing,
// unreadable, outdated or mismatching checkpoint yields StateFresh and a
// nil checkpoint; the stale file is removed.
func (m *Manager) Begin(scope Scope) (*Checkpoint, State, error) {
	m.createdAt = m.now().UTC()

	cp, err := m.Read()
	if err != nil {
		log.Warn("discarding unreadable checkpoint", "path", m.path, "error", err)
		return nil, StateFresh, m.Clear()
	}
	if cp == nil {
		return nil, StateFresh, nil
	}

	want := scope.Fingerprint()
	switch {
	case cp.Version != constants.CheckpointVersion:
		log.Warn("discarding checkpoint from another version", "path", m.path, "version", cp.Version)
		return nil, StateFresh, m.Clear()
	case cp.Fingerprint != want:
		log.Warn("discarding checkpoint for a different scope", "path", m.path,
			"checkpointOwners", strings.Join(cp.Scope.Owners, ","), "checkpointSince", cp.Scope.Since)
		return nil, StateFresh, m.Clear()
	case len(cp.CompletedUnits) != len(cp.Units):
		log.Warn("discarding inconsistent checkpoint", "path", m.path)
		return nil, StateFresh, m.Clear()
	}

	if !cp.CreatedAt.IsZero() {
		m.createdAt = cp.CreatedAt
	}
	log.Info("resuming from checkpoint", "path", m.path, "completedUnits", len(cp.CompletedUnits))
	return cp, StateResuming, nil
}

// Save synchronously and atomically writes the accumulated units.
func (m *Manager) Save(scope Scope, units []model.UnitResult) error {
	if m.createdAt.IsZero() {
		m.createdAt = m.now().UTC()
	}

	completed := make([]string, len(units))
	for i, u := range units {
		completed[i] = u.Unit
	}

	cp := Checkpoint{
		Version:        constants.CheckpointVersion,
		Fingerprint:    scope.Fingerprint(),
		Scope:          scope,
		CompletedUnits: completed,
		Units:          units,
		CreatedAt:      m.createdAt,
		UpdatedAt:      m.now().UTC(),
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := fileutil.WriteAtomic(m.path, data, 0600); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	log.Debug("checkpoint saved", "path", m.path, "units", len(units))
	return nil
}

// Clear removes the checkpoint file. A missing file is not an error.
func (m *Manager) Clear() error {
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}
