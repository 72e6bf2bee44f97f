// Package identity assigns primary keys to every live entity of a seed run.
package identity

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-seed/pkg/models"
)

// maxUUIDAttempts bounds regeneration when a freshly drawn UUID collides with
// one already issued in the run.
const maxUUIDAttempts = 8

// Strategy issues identifiers for one run. Construct a new Strategy per run.
type Strategy struct {
	mode    models.IDMode
	base    int
	newUUID func() uuid.UUID
}

// Option configures a Strategy.
type Option func(*Strategy)

// WithBase sets the first autoincrement ID issued per table.
func WithBase(base int) Option {
	return func(s *Strategy) {
		s.base = base
	}
}

// WithUUIDSource replaces uuid.New, for tests.
func WithUUIDSource(fn func() uuid.UUID) Option {
	return func(s *Strategy) {
		s.newUUID = fn
	}
}

// NewStrategy creates a Strategy for the given identifier mode.
func NewStrategy(mode models.IDMode, opts ...Option) (*Strategy, error) {
	if _, err := models.ParseIDMode(string(mode)); err != nil {
		return nil, err
	}
	s := &Strategy{
		mode:    mode,
		base:    models.DefaultAutoincrementBase,
		newUUID: uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.mode == models.IDModeAutoincrement && s.base < 1 {
		return nil, &models.ValidationError{
			Kind:    models.KindInvalidValue,
			Field:   "autoincrement_base",
			Message: fmt.Sprintf("must be at least 1, got %d", s.base),
		}
	}
	return s, nil
}

// Mode returns the identifier mode.
func (s *Strategy) Mode() models.IDMode {
	return s.mode
}

// Assign issues an ID to every live entity in run. Autoincrement IDs are
// contiguous per type starting at the base, in insertion order. UUIDs are v4
// and distinct across the whole run.
func (s *Strategy) Assign(run *models.SeedRun) (*Assignment, error) {
	a := newAssignment(run, s.mode)
	issued := make(map[string]struct{})

	for _, t := range models.EntityTypes {
		refs := run.Refs(t)
		for i, ref := range refs {
			var id string
			if s.mode == models.IDModeAutoincrement {
				id = strconv.Itoa(s.base + i)
			} else {
				var err error
				id, err = s.drawUUID(issued)
				if err != nil {
					return nil, fmt.Errorf("assign %s: %w", ref, err)
				}
				issued[id] = struct{}{}
			}
			a.add(ref, id)
		}
	}
	return a, nil
}

func (s *Strategy) drawUUID(issued map[string]struct{}) (string, error) {
	for attempt := 0; attempt < maxUUIDAttempts; attempt++ {
		id := strings.ToLower(s.newUUID().String())
		if _, dup := issued[id]; !dup {
			return id, nil
		}
	}
	return "", fmt.Errorf("uuid collision persisted after %d attempts", maxUUIDAttempts)
}
