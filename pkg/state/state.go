// Package state persists the last applied resource state as a versioned JSON
// document.
//
// The state file is the only long-lived mutable entity in wareform. It is
// written atomically: a crash or failed write leaves the previous document in
// place. Concurrent writers against one path are not coordinated.
package state

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/wareform/wareform/pkg/engine"
)

// Version is the only state document version this build reads or writes.
const Version = 1

// State is the persisted document.
type State struct {
	StateVersion int              `json:"state_version"`
	Resources    engine.Resources `json:"resources"`
}

// New returns an empty state at the supported version.
func New() *State {
	return &State{
		StateVersion: Version,
		Resources:    engine.Resources{},
	}
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	return &State{
		StateVersion: s.StateVersion,
		Resources:    s.Resources.Clone(),
	}
}

// Marshal encodes s with two-space indentation, sorted keys and a trailing newline.
func (s *State) Marshal() ([]byte, error) {
	doc := *s
	if doc.Resources == nil {
		doc.Resources = engine.Resources{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}
	return buf.Bytes(), nil
}

// Hash returns "sha256:<hex>" of the compact canonical encoding of s.
func (s *State) Hash() (string, error) {
	doc := *s
	if doc.Resources == nil {
		doc.Resources = engine.Resources{}
	}
	raw, err := json.Marshal(&doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode state: %w", err)
	}
	return fmt.Sprintf("sha256:%x", sha256.Sum256(raw)), nil
}

// Counts returns the number of stored resources of every kind, including
// kinds with zero resources.
func (s *State) Counts() map[engine.ResourceKind]int {
	counts := make(map[engine.ResourceKind]int, len(engine.AllResourceKinds()))
	for _, kind := range engine.AllResourceKinds() {
		counts[kind] = len(s.Resources[kind])
	}
	return counts
}

// NewStateVersionError reports a state document whose version is unsupported.
// found is the raw JSON text of state_version, or "missing".
func NewStateVersionError(path string, found string) *engine.EngineError {
	return engine.NewPermanentError(
		fmt.Sprintf("unsupported state version %s (supported: %d)", found, Version), nil).
		WithCode(engine.ErrCodeStateVersion).
		WithResource(path).
		WithDetail("found", found).
		WithDetail("supported", Version)
}
