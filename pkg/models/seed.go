package models

import (
	"fmt"
	"strings"
)

// Dialect is the SQL variant a seed script targets.
type Dialect string

const (
	DialectMySQL      Dialect = "mysql"
	DialectPostgreSQL Dialect = "postgresql"
	DialectSQLServer  Dialect = "sqlserver"
)

// AllDialects lists supported dialects in display order.
var AllDialects = []Dialect{DialectMySQL, DialectPostgreSQL, DialectSQLServer}

// ParseDialect normalizes a user-supplied dialect name.
// "postgres" and "mssql" are accepted as aliases.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mysql":
		return DialectMySQL, nil
	case "postgresql", "postgres", "pg":
		return DialectPostgreSQL, nil
	case "sqlserver", "mssql":
		return DialectSQLServer, nil
	}
	return "", &ValidationError{
		Kind:    KindInvalidValue,
		Field:   "dialect",
		Message: fmt.Sprintf("unsupported dialect %q (expected mysql, postgresql or sqlserver)", s),
	}
}

// IDMode is the primary-key generation policy for a run.
type IDMode string

const (
	IDModeUUID          IDMode = "uuid"
	IDModeAutoincrement IDMode = "autoincrement"
)

// ParseIDMode normalizes a user-supplied identifier mode.
func ParseIDMode(s string) (IDMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "uuid":
		return IDModeUUID, nil
	case "autoincrement", "auto_increment", "serial", "identity":
		return IDModeAutoincrement, nil
	}
	return "", &ValidationError{
		Kind:    KindInvalidValue,
		Field:   "id_mode",
		Message: fmt.Sprintf("unsupported identifier mode %q (expected uuid or autoincrement)", s),
	}
}

// EntityType identifies one of the seeded entity kinds.
type EntityType string

const (
	EntityJobPosition  EntityType = "job_position"
	EntityQuestionBank EntityType = "question_bank"
	EntityQuestion     EntityType = "question"
	EntityOption       EntityType = "option"
)

// EntityTypes lists entity kinds parents-first. Script order follows this.
var EntityTypes = []EntityType{EntityJobPosition, EntityQuestionBank, EntityQuestion, EntityOption}

// Parent returns the entity type referenced by t's foreign key.
func (t EntityType) Parent() (EntityType, bool) {
	switch t {
	case EntityQuestionBank:
		return EntityJobPosition, true
	case EntityQuestion:
		return EntityQuestionBank, true
	case EntityOption:
		return EntityQuestion, true
	}
	return "", false
}

// Level is the difficulty tier of a question bank.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// ParseLevel normalizes a bank level. Empty input yields LevelMedium.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return LevelMedium, nil
	case "low", "bajo":
		return LevelLow, nil
	case "medium", "medio":
		return LevelMedium, nil
	case "high", "alto":
		return LevelHigh, nil
	}
	return "", &ValidationError{
		Kind:    KindInvalidValue,
		Entity:  EntityQuestionBank,
		Field:   "level",
		Message: fmt.Sprintf("unsupported level %q (expected low, medium or high)", s),
	}
}

// Ref is a stable handle to an entity inside a SeedRun.
// Index is the position in the run's append-only list for Type.
type Ref struct {
	Type  EntityType
	Index int
}

func (r Ref) String() string {
	return fmt.Sprintf("%s#%d", r.Type, r.Index)
}

// JobPosition is the root seeded entity.
type JobPosition struct {
	title       string
	description string
}

// NewJobPosition validates and creates a job position.
func NewJobPosition(title, description string) (JobPosition, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return JobPosition{}, emptyField(EntityJobPosition, "title")
	}
	return JobPosition{title: title, description: strings.TrimSpace(description)}, nil
}

func (j JobPosition) Title() string       { return j.title }
func (j JobPosition) Description() string { return j.description }

// QuestionBank groups questions under a job position.
type QuestionBank struct {
	jobPosition Ref
	name        string
	level       Level
}

// NewQuestionBank validates and creates a question bank for the given job position.
func NewQuestionBank(jobPosition Ref, name string, level Level) (QuestionBank, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return QuestionBank{}, emptyField(EntityQuestionBank, "name")
	}
	if jobPosition.Type != EntityJobPosition {
		return QuestionBank{}, &ValidationError{
			Kind:    KindMissingParent,
			Entity:  EntityQuestionBank,
			Field:   "job_position",
			Message: fmt.Sprintf("parent must be a job position, got %s", jobPosition.Type),
		}
	}
	if level == "" {
		level = LevelMedium
	}
	if _, err := ParseLevel(string(level)); err != nil {
		return QuestionBank{}, err
	}
	return QuestionBank{jobPosition: jobPosition, name: name, level: level}, nil
}

func (b QuestionBank) JobPosition() Ref { return b.jobPosition }
func (b QuestionBank) Name() string     { return b.name }
func (b QuestionBank) Level() Level     { return b.level }

// Option is one answer choice of a question.
type Option struct {
	text      string
	isCorrect bool
}

// NewOption validates and creates an answer option.
func NewOption(text string, isCorrect bool) (Option, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Option{}, emptyField(EntityOption, "text")
	}
	return Option{text: text, isCorrect: isCorrect}, nil
}

func (o Option) Text() string    { return o.text }
func (o Option) IsCorrect() bool { return o.isCorrect }

// Question is a bank question with its ordered options.
type Question struct {
	bank    Ref
	text    string
	options []Option
}

// NewQuestion validates and creates a question. At least one option must be
// correct and option texts must be unique within the question.
func NewQuestion(bank Ref, text string, options []Option) (Question, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Question{}, emptyField(EntityQuestion, "text")
	}
	if bank.Type != EntityQuestionBank {
		return Question{}, &ValidationError{
			Kind:    KindMissingParent,
			Entity:  EntityQuestion,
			Field:   "question_bank",
			Message: fmt.Sprintf("parent must be a question bank, got %s", bank.Type),
		}
	}

	seen := make(map[string]struct{}, len(options))
	hasCorrect := false
	for i, o := range options {
		if o.text == "" {
			return Question{}, &ValidationError{
				Kind:    KindEmptyField,
				Entity:  EntityOption,
				Field:   "text",
				Message: fmt.Sprintf("option %d of question %q has empty text", i+1, text),
			}
		}
		key := nameKey(o.text)
		if _, dup := seen[key]; dup {
			return Question{}, &ValidationError{
				Kind:    KindDuplicateName,
				Entity:  EntityOption,
				Field:   "text",
				Message: fmt.Sprintf("option %q appears more than once in question %q", o.text, text),
			}
		}
		seen[key] = struct{}{}
		hasCorrect = hasCorrect || o.isCorrect
	}
	if !hasCorrect {
		return Question{}, &ValidationError{
			Kind:    KindMissingCorrectOption,
			Entity:  EntityQuestion,
			Field:   "options",
			Message: fmt.Sprintf("question %q needs at least one correct option", text),
		}
	}

	opts := make([]Option, len(options))
	copy(opts, options)
	return Question{bank: bank, text: text, options: opts}, nil
}

func (q Question) Bank() Ref    { return q.bank }
func (q Question) Text() string { return q.text }

// Options returns a copy of the question's options in order.
func (q Question) Options() []Option {
	out := make([]Option, len(q.options))
	copy(out, q.options)
	return out
}

// nameKey is the comparison key for duplicate-name checks.
func nameKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func emptyField(entity EntityType, field string) *ValidationError {
	return &ValidationError{
		Kind:    KindEmptyField,
		Entity:  entity,
		Field:   field,
		Message: fmt.Sprintf("%s %s must not be empty", entity, field),
	}
}
