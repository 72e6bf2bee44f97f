// Package seedfile reads seed input documents (YAML or JSON) and turns them
// into a generation request.
package seedfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-seed/pkg/config"
	"github.com/ekaya-inc/ekaya-seed/pkg/models"
)

// File is the seed document. Generation settings are optional and fall back
// to Defaults.
type File struct {
	Dialect           string        `yaml:"dialect,omitempty" json:"dialect,omitempty"`
	IDMode            string        `yaml:"id_mode,omitempty" json:"id_mode,omitempty"`
	AutoincrementBase int           `yaml:"autoincrement_base,omitempty" json:"autoincrement_base,omitempty" validate:"gte=0"`
	Model             string        `yaml:"model,omitempty" json:"model,omitempty"`
	JobPositions      []JobPosition `yaml:"job_positions" json:"job_positions" validate:"required,min=1,dive"`
}

// JobPosition is a job position with its question banks.
type JobPosition struct {
	Title         string         `yaml:"title" json:"title" validate:"required,notblank"`
	Description   string         `yaml:"description,omitempty" json:"description,omitempty"`
	QuestionBanks []QuestionBank `yaml:"question_banks,omitempty" json:"question_banks,omitempty" validate:"dive"`
}

// QuestionBank is a bank of questions for one job position.
type QuestionBank struct {
	Name      string     `yaml:"name" json:"name" validate:"required,notblank"`
	Level     string     `yaml:"level,omitempty" json:"level,omitempty"`
	Questions []Question `yaml:"questions,omitempty" json:"questions,omitempty" validate:"dive"`
}

// Question is a question with its answer options in display order.
type Question struct {
	Text    string   `yaml:"text" json:"text" validate:"required,notblank"`
	Options []Option `yaml:"options" json:"options" validate:"required,min=1,dive"`
}

// Option is one answer option.
type Option struct {
	Text    string `yaml:"text" json:"text" validate:"required,notblank"`
	Correct bool   `yaml:"correct" json:"correct"`
}

// Defaults fill generation settings the file leaves out.
type Defaults struct {
	Dialect           models.Dialect
	IDMode            models.IDMode
	AutoincrementBase int
	Model             string
}

// DefaultsFromConfig reads the generation defaults from the seed and llm
// sections of cfg.
func DefaultsFromConfig(cfg *config.Config) (Defaults, error) {
	dialect, err := models.ParseDialect(cfg.Seed.Dialect)
	if err != nil {
		return Defaults{}, err
	}
	mode, err := models.ParseIDMode(cfg.Seed.IDMode)
	if err != nil {
		return Defaults{}, err
	}
	return Defaults{
		Dialect:           dialect,
		IDMode:            mode,
		AutoincrementBase: cfg.Seed.AutoincrementBase,
		Model:             cfg.LLM.Model,
	}, nil
}

// Format is the encoding of a seed document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FieldError is one struct-tag violation, addressed by document path,
// e.g. job_positions[0].question_banks[1].name.
type FieldError struct {
	Path string
	Rule string
}

func (e FieldError) Error() string {
	switch e.Rule {
	case "required", "notblank":
		return e.Path + " is required"
	case "min":
		return e.Path + " must not be empty"
	case "gte":
		return e.Path + " must not be negative"
	}
	return fmt.Sprintf("%s failed %q", e.Path, e.Rule)
}

// InvalidFileError lists every struct-tag violation in a document.
type InvalidFileError struct {
	Fields []FieldError
}

func (e *InvalidFileError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Error()
	}
	return "invalid seed file: " + strings.Join(msgs, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// FormatForPath picks the format from a file extension; anything other than
// .json is read as YAML.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Load reads and validates the seed document at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(data, FormatForPath(path))
}

// Parse decodes and validates a seed document. Unknown fields are rejected.
func Parse(data []byte, format Format) (*File, error) {
	var f File
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("decode seed JSON: %w", err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("decode seed YAML: %w", err)
		}
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks the document's struct tags.
func (f *File) Validate() error {
	err := validate.Struct(f)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate seed file: %w", err)
	}
	out := &InvalidFileError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Path: documentPath(fe.Namespace()), Rule: fe.Tag()})
	}
	return out
}

// documentPath drops the root type name from a validator namespace.
func documentPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// Request builds the domain model through its constructors and returns the
// generation request. Settings in the file win over defaults. apiKey is
// attached to the request and never read from the file.
func (f *File) Request(defaults Defaults, apiKey string) (*models.GenerationRequest, error) {
	run, err := f.SeedRun()
	if err != nil {
		return nil, err
	}

	req := &models.GenerationRequest{
		Dialect:           defaults.Dialect,
		IDMode:            defaults.IDMode,
		AutoincrementBase: defaults.AutoincrementBase,
		Model:             defaults.Model,
		APIKey:            apiKey,
		Run:               run,
	}
	if f.Dialect != "" {
		d, err := models.ParseDialect(f.Dialect)
		if err != nil {
			return nil, err
		}
		req.Dialect = d
	}
	if f.IDMode != "" {
		m, err := models.ParseIDMode(f.IDMode)
		if err != nil {
			return nil, err
		}
		req.IDMode = m
	}
	if f.AutoincrementBase > 0 {
		req.AutoincrementBase = f.AutoincrementBase
	}
	if req.AutoincrementBase == 0 {
		req.AutoincrementBase = models.DefaultAutoincrementBase
	}
	if f.Model != "" {
		req.Model = f.Model
	}
	return req, nil
}

// SeedRun builds the run in document order. Constructor errors are returned
// with the document path they came from.
func (f *File) SeedRun() (*models.SeedRun, error) {
	run := models.NewSeedRun()
	for i, jp := range f.JobPositions {
		path := fmt.Sprintf("job_positions[%d]", i)
		position, err := models.NewJobPosition(jp.Title, jp.Description)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		jpRef, err := run.AddJobPosition(position)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}

		for j, qb := range jp.QuestionBanks {
			path := fmt.Sprintf("%s.question_banks[%d]", path, j)
			level, err := models.ParseLevel(qb.Level)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			bank, err := models.NewQuestionBank(jpRef, qb.Name, level)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			bankRef, err := run.AddQuestionBank(bank)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}

			for k, q := range qb.Questions {
				path := fmt.Sprintf("%s.questions[%d]", path, k)
				opts := make([]models.Option, 0, len(q.Options))
				for l, o := range q.Options {
					opt, err := models.NewOption(o.Text, o.Correct)
					if err != nil {
						return nil, fmt.Errorf("%s.options[%d]: %w", path, l, err)
					}
					opts = append(opts, opt)
				}
				question, err := models.NewQuestion(bankRef, q.Text, opts)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", path, err)
				}
				if _, err := run.AddQuestion(question); err != nil {
					return nil, fmt.Errorf("%s: %w", path, err)
				}
			}
		}
	}
	return run, nil
}
