package models

import "fmt"

// DefaultAutoincrementBase is the first ID issued per table in autoincrement mode.
const DefaultAutoincrementBase = 1

// GenerationRequest is everything one pipeline run needs.
type GenerationRequest struct {
	Dialect           Dialect  `json:"dialect"`
	IDMode            IDMode   `json:"id_mode"`
	AutoincrementBase int      `json:"autoincrement_base"`
	Model             string   `json:"model"`
	APIKey            string   `json:"-"` // never serialized or logged
	Run               *SeedRun `json:"-"`
}

// Validate checks the request before any network call is made.
func (r *GenerationRequest) Validate() error {
	if _, err := ParseDialect(string(r.Dialect)); err != nil {
		return err
	}
	if _, err := ParseIDMode(string(r.IDMode)); err != nil {
		return err
	}
	if r.IDMode == IDModeAutoincrement && r.AutoincrementBase < 1 {
		return &ValidationError{
			Kind:    KindInvalidValue,
			Field:   "autoincrement_base",
			Message: fmt.Sprintf("must be at least 1, got %d", r.AutoincrementBase),
		}
	}
	if r.Model == "" {
		return &ValidationError{
			Kind:    KindEmptyField,
			Field:   "model",
			Message: "model must not be empty",
		}
	}
	if r.Run == nil || r.Run.Len(EntityJobPosition) == 0 {
		return &ValidationError{
			Kind:    KindMissingParent,
			Entity:  EntityJobPosition,
			Field:   "title",
			Message: "the run needs at least one job position",
		}
	}
	return nil
}

// DefectKind classifies a problem found in model-returned SQL.
type DefectKind string

const (
	DefectUnparseableFragment DefectKind = "UnparseableFragment"
	DefectShapeMismatch       DefectKind = "ShapeMismatch"
	DefectDanglingReference   DefectKind = "DanglingReference"
	DefectDuplicateKey        DefectKind = "DuplicateKey"
	DefectUnassignedKey       DefectKind = "UnassignedKey"
	DefectMissingRow          DefectKind = "MissingRow"
)

// Defect is one problem in a generated script. Line is 1-based and refers to
// the text the model returned; it is 0 when the defect has no single location
// (MissingRow).
type Defect struct {
	Kind    DefectKind `json:"kind"`
	Table   string     `json:"table,omitempty"`
	Column  string     `json:"column,omitempty"`
	Value   string     `json:"value,omitempty"`
	Line    int        `json:"line,omitempty"`
	Snippet string     `json:"snippet,omitempty"`
	Message string     `json:"message"`
}

func (d Defect) String() string {
	if d.Line > 0 {
		return fmt.Sprintf("%s (line %d): %s", d.Kind, d.Line, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Kind, d.Message)
}

// GenerationResult is the outcome of a run: a validated script or a defect
// report, never both.
type GenerationResult struct {
	Script            string   `json:"script,omitempty"`
	Statements        []string `json:"statements,omitempty"`
	Defects           []Defect `json:"defects,omitempty"`
	PromptFingerprint string   `json:"prompt_fingerprint"`
	Model             string   `json:"model"`
}

// OK reports whether the result carries a usable script.
func (r *GenerationResult) OK() bool {
	return len(r.Defects) == 0 && r.Script != ""
}
