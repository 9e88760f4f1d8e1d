package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/wareform/wareform/pkg/engine"
)

// DefaultPath is the conventional state file location.
const DefaultPath = "state/state.json"

// LocalBackend stores state in a JSON file on the local filesystem.
type LocalBackend struct {
	path   string
	logger zerolog.Logger
	rename func(oldpath, newpath string) error
}

// NewLocalBackend creates a backend for the state file at path.
func NewLocalBackend(path string, logger zerolog.Logger) *LocalBackend {
	return &LocalBackend{
		path:   path,
		logger: logger.With().Str("component", "state-backend").Str("path", path).Logger(),
		rename: os.Rename,
	}
}

// Path returns the state file path.
func (b *LocalBackend) Path() string {
	return b.path
}

// Load reads the state file. A missing file yields a fresh empty state; a
// version other than Version is a STATE_VERSION error.
func (b *LocalBackend) Load() (*State, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			b.logger.Debug().Msg("No state file, starting empty")
			return New(), nil
		}
		return nil, b.ioError("failed to read state", err)
	}
	return b.decode(data)
}

func (b *LocalBackend) decode(data []byte) (*State, error) {
	var header struct {
		StateVersion json.RawMessage `json:"state_version"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, b.ioError("failed to decode state", err)
	}
	// Only the JSON integer literal matches; "1", 1.0 and null do not.
	found := string(bytes.TrimSpace(header.StateVersion))
	if found == "" {
		return nil, NewStateVersionError(b.path, "missing")
	}
	if found != strconv.Itoa(Version) {
		return nil, NewStateVersionError(b.path, found)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, b.ioError("failed to decode state", err)
	}
	if s.Resources == nil {
		s.Resources = engine.Resources{}
	}
	for kind, byKey := range s.Resources {
		if !kind.Valid() {
			return nil, engine.NewUnsupportedKindError(kind).WithResource(b.path)
		}
		for key, details := range byKey {
			if details == nil {
				byKey[key] = engine.Details{}
			}
		}
	}

	b.logger.Debug().Int("resources", s.Resources.Count()).Msg("State loaded")
	return &s, nil
}

// Save writes s atomically: the document goes to a temporary file in the
// same directory, is synced, and is renamed over the target.
func (b *LocalBackend) Save(s *State) error {
	data, err := s.Marshal()
	if err != nil {
		return b.ioError("failed to encode state", err)
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return b.ioError("failed to create state directory", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return b.ioError("failed to create temporary state file", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return b.ioError("failed to write state", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return b.ioError("failed to sync state", err)
	}
	if err := tmp.Close(); err != nil {
		return b.ioError("failed to close state", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return b.ioError("failed to set state permissions", err)
	}
	if err := b.rename(tmpPath, b.path); err != nil {
		return b.ioError("failed to commit state", err)
	}
	committed = true

	// Persist the rename itself. Not every platform supports syncing a directory.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	b.logger.Debug().Int("bytes", len(data)).Msg("State saved")
	return nil
}

// Apply validates every action, applies them in order to a copy of the
// current resources and persists the result in one write. Create-like
// actions upsert; drop-like actions remove and ignore missing resources.
// Nothing is written if any action is invalid. The returned state is a copy.
func (b *LocalBackend) Apply(plan []engine.PlanAction) (*State, error) {
	start := time.Now()

	if err := engine.ValidatePlan(plan); err != nil {
		return nil, err
	}

	normalized := make([]engine.Details, len(plan))
	for i, a := range plan {
		if a.Action.IsDropLike() {
			continue
		}
		d, err := engine.NormalizeDetails(a.Details)
		if err != nil {
			return nil, engine.NewPermanentError("invalid action details", err).
				WithCode(engine.ErrCodeInvalidPayload).
				WithResource(a.ID()).
				WithDetail("index", i)
		}
		normalized[i] = d
	}

	current, err := b.Load()
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	for i, a := range plan {
		if a.Action.IsDropLike() {
			next.Resources.Delete(a.Kind, a.Key)
			continue
		}
		next.Resources.Put(a.Kind, a.Key, normalized[i])
	}
	for kind, byKey := range next.Resources {
		if len(byKey) == 0 {
			delete(next.Resources, kind)
		}
	}

	if err := b.Save(next); err != nil {
		return nil, err
	}

	b.logger.Info().
		Int("actions", len(plan)).
		Int("resources", next.Resources.Count()).
		Dur("duration", time.Since(start)).
		Msg("State applied")

	return next.Clone(), nil
}

// ApplyPayload decodes a plan payload and applies it.
func (b *LocalBackend) ApplyPayload(r io.Reader) (*State, error) {
	plan, err := engine.DecodePlan(r)
	if err != nil {
		return nil, err
	}
	return b.Apply(plan)
}

func (b *LocalBackend) ioError(msg string, err error) error {
	return engine.NewIOError(fmt.Sprintf("%s: %s", msg, b.path), err).
		WithCode(engine.ErrCodeStateIO).
		WithResource(b.path)
}
