package identity

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-seed/pkg/models"
)

// Assignment maps the live entities of a run to their primary keys.
// It is read-only once built.
type Assignment struct {
	run     *models.SeedRun
	mode    models.IDMode
	order   map[models.EntityType][]models.Ref
	ids     map[models.Ref]string
	seq     map[models.Ref]int
	reverse map[models.EntityType]map[string]models.Ref
}

func newAssignment(run *models.SeedRun, mode models.IDMode) *Assignment {
	a := &Assignment{
		run:     run,
		mode:    mode,
		order:   make(map[models.EntityType][]models.Ref),
		ids:     make(map[models.Ref]string),
		seq:     make(map[models.Ref]int),
		reverse: make(map[models.EntityType]map[string]models.Ref),
	}
	for _, t := range models.EntityTypes {
		a.reverse[t] = make(map[string]models.Ref)
	}
	return a
}

func (a *Assignment) add(ref models.Ref, id string) {
	a.seq[ref] = len(a.order[ref.Type])
	a.order[ref.Type] = append(a.order[ref.Type], ref)
	a.ids[ref] = id
	a.reverse[ref.Type][id] = ref
}

// Mode returns the identifier mode the IDs were issued under.
func (a *Assignment) Mode() models.IDMode {
	return a.mode
}

// Run returns the run the assignment was built for.
func (a *Assignment) Run() *models.SeedRun {
	return a.run
}

// ID returns the identifier of ref.
func (a *Assignment) ID(ref models.Ref) (string, bool) {
	id, ok := a.ids[ref]
	return id, ok
}

// Lookup finds the entity of type t that owns id. UUIDs match
// case-insensitively and integers ignore leading zeros.
func (a *Assignment) Lookup(t models.EntityType, id string) (models.Ref, bool) {
	ref, ok := a.reverse[t][a.canonical(id)]
	return ref, ok
}

// Sequence returns the position of ref among the assigned entities of its
// type, or -1.
func (a *Assignment) Sequence(ref models.Ref) int {
	if i, ok := a.seq[ref]; ok {
		return i
	}
	return -1
}

// IDs returns the identifiers of type t in assignment order.
func (a *Assignment) IDs(t models.EntityType) []string {
	refs := a.order[t]
	out := make([]string, len(refs))
	for i, ref := range refs {
		out[i] = a.ids[ref]
	}
	return out
}

// Refs returns the refs of type t in assignment order.
func (a *Assignment) Refs(t models.EntityType) []models.Ref {
	out := make([]models.Ref, len(a.order[t]))
	copy(out, a.order[t])
	return out
}

// ParentID returns the identifier ref's foreign key must hold.
func (a *Assignment) ParentID(ref models.Ref) (string, bool) {
	parent, ok := a.run.Parent(ref)
	if !ok {
		return "", false
	}
	return a.ID(parent)
}

// Count returns how many entities of type t have an ID.
func (a *Assignment) Count(t models.EntityType) int {
	return len(a.order[t])
}

// Export returns the identifiers per entity type, suitable for saving and
// later passing to Restore.
func (a *Assignment) Export() map[models.EntityType][]string {
	out := make(map[models.EntityType][]string, len(models.EntityTypes))
	for _, t := range models.EntityTypes {
		out[t] = a.IDs(t)
	}
	return out
}

// Canonical normalizes an ID literal for comparison against this assignment.
func (a *Assignment) Canonical(id string) string {
	return a.canonical(id)
}

func (a *Assignment) canonical(id string) string {
	id = strings.TrimSpace(id)
	if a.mode == models.IDModeAutoincrement {
		if n, err := strconv.ParseInt(id, 10, 64); err == nil {
			return strconv.FormatInt(n, 10)
		}
		return id
	}
	return strings.ToLower(id)
}

// Restore rebuilds an assignment from previously exported IDs so saved model
// output can be validated offline. Each type must list exactly one ID per live
// entity, in run order.
func Restore(run *models.SeedRun, mode models.IDMode, ids map[models.EntityType][]string) (*Assignment, error) {
	if _, err := models.ParseIDMode(string(mode)); err != nil {
		return nil, err
	}
	a := newAssignment(run, mode)
	seen := make(map[string]models.EntityType)

	for _, t := range models.EntityTypes {
		refs := run.Refs(t)
		got := ids[t]
		if len(got) != len(refs) {
			return nil, &models.ValidationError{
				Kind:    models.KindInvalidValue,
				Entity:  t,
				Field:   "id",
				Message: fmt.Sprintf("expected %d ids, got %d", len(refs), len(got)),
			}
		}
		perType := make(map[string]struct{}, len(got))
		for i, raw := range got {
			id := a.canonical(raw)
			if err := checkFormat(mode, t, id); err != nil {
				return nil, err
			}
			if _, dup := perType[id]; dup {
				return nil, duplicateID(t, id)
			}
			if other, dup := seen[id]; dup && mode == models.IDModeUUID {
				return nil, duplicateID(other, id)
			}
			perType[id] = struct{}{}
			seen[id] = t
			a.add(refs[i], id)
		}
	}
	return a, nil
}

func checkFormat(mode models.IDMode, t models.EntityType, id string) error {
	if mode == models.IDModeAutoincrement {
		if n, err := strconv.Atoi(id); err != nil || n < 1 {
			return &models.ValidationError{
				Kind:    models.KindInvalidValue,
				Entity:  t,
				Field:   "id",
				Message: fmt.Sprintf("%q is not a positive integer", id),
			}
		}
		return nil
	}
	if u, err := uuid.Parse(id); err != nil || u.Version() != 4 {
		return &models.ValidationError{
			Kind:    models.KindInvalidValue,
			Entity:  t,
			Field:   "id",
			Message: fmt.Sprintf("%q is not a v4 UUID", id),
		}
	}
	return nil
}

func duplicateID(t models.EntityType, id string) error {
	return &models.ValidationError{
		Kind:    models.KindInvalidValue,
		Entity:  t,
		Field:   "id",
		Message: fmt.Sprintf("id %s is issued more than once", id),
	}
}
