package prompts

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-seed/pkg/identity"
	"github.com/ekaya-inc/ekaya-seed/pkg/models"
)

// DefaultSeedTemperature keeps generation close to deterministic.
const DefaultSeedTemperature = 0.3

// SeedPromptInput is everything the seed prompt encodes.
type SeedPromptInput struct {
	Dialect    models.Dialect
	Assignment *identity.Assignment
}

// SeedPrompt is the system and user text sent to the model.
type SeedPrompt struct {
	System string
	User   string
}

// Fingerprint is the SHA-256 of the system and user text, hex encoded.
func (p *SeedPrompt) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(p.System))
	h.Write([]byte{0})
	h.Write([]byte(p.User))
	return hex.EncodeToString(h.Sum(nil))
}

// dialectRules holds the literal and quoting conventions stated in the prompt.
type dialectRules struct {
	name       string
	quoteStyle string
	boolTrue   string
	boolFalse  string
	stringRule string
}

func rulesFor(d models.Dialect) dialectRules {
	switch d {
	case models.DialectPostgreSQL:
		return dialectRules{
			name:       "PostgreSQL",
			quoteStyle: `double quotes only when needed, e.g. "options"`,
			boolTrue:   "TRUE",
			boolFalse:  "FALSE",
			stringRule: "single-quoted; escape a single quote by doubling it ('')",
		}
	case models.DialectSQLServer:
		return dialectRules{
			name:       "SQL Server (T-SQL)",
			quoteStyle: "square brackets, e.g. [options]",
			boolTrue:   "1",
			boolFalse:  "0",
			stringRule: "Unicode literals N'...'; escape a single quote by doubling it ('')",
		}
	default:
		return dialectRules{
			name:       "MySQL",
			quoteStyle: "backticks, e.g. `options`",
			boolTrue:   "TRUE",
			boolFalse:  "FALSE",
			stringRule: "single-quoted; escape a single quote by doubling it ('') and a backslash by doubling it (\\\\)",
		}
	}
}

// BuildSeedPrompt creates the generation request for one seed run.
// The output is byte-identical for identical input.
func BuildSeedPrompt(in SeedPromptInput) (*SeedPrompt, error) {
	if in.Assignment == nil {
		return nil, fmt.Errorf("seed prompt requires an identifier assignment")
	}
	data, err := seedData(in.Assignment)
	if err != nil {
		return nil, fmt.Errorf("serialize seed data: %w", err)
	}

	mode := in.Assignment.Mode()
	rules := rulesFor(in.Dialect)
	var prompt strings.Builder

	prompt.WriteString("# Seed Data INSERT Script\n\n")
	prompt.WriteString(fmt.Sprintf("Write %s INSERT statements that load the data below into the schema below.\n\n", rules.name))

	prompt.WriteString("## Schema\n\n")
	for _, table := range models.SeedSchema() {
		prompt.WriteString(fmt.Sprintf("### %s\n", table.Name))
		for _, col := range table.Columns {
			flags := ""
			switch col.Kind {
			case models.ColumnID:
				flags = " [PK]"
			case models.ColumnForeignKey:
				flags = fmt.Sprintf(" [FK→%s.id]", models.TableName(col.References))
			}
			if col.Nullable {
				flags += " NULL"
			} else {
				flags += " NOT NULL"
			}
			prompt.WriteString(fmt.Sprintf("- %s %s%s\n", col.Name, col.SQLType(in.Dialect, mode), flags))
		}
		prompt.WriteString("\n")
	}

	prompt.WriteString("## SQL Rules\n\n")
	prompt.WriteString(fmt.Sprintf("- Dialect: %s\n", rules.name))
	prompt.WriteString(fmt.Sprintf("- Identifier quoting: %s\n", rules.quoteStyle))
	prompt.WriteString(fmt.Sprintf("- Booleans: %s for true, %s for false\n", rules.boolTrue, rules.boolFalse))
	prompt.WriteString(fmt.Sprintf("- Strings: %s\n", rules.stringRule))
	prompt.WriteString("- NULL is written as NULL, without quotes\n")
	prompt.WriteString("- Terminate every statement with a semicolon (;)\n")
	prompt.WriteString("- List the columns explicitly in every INSERT\n\n")

	prompt.WriteString("## Identifier Rules\n\n")
	if mode == models.IDModeAutoincrement {
		prompt.WriteString("- Every row has an integer `id` given in the data. Write it as a bare integer literal.\n")
	} else {
		prompt.WriteString("- Every row has a UUID `id` given in the data. Write it as a quoted string literal.\n")
	}
	prompt.WriteString("- Use exactly the ids and foreign keys given in the data. Never invent, renumber or omit an id.\n")
	prompt.WriteString("- Never use DEFAULT, gen_random_uuid(), NEWID(), UUID() or any other generated value for an id.\n\n")

	prompt.WriteString("## Ordering\n\n")
	prompt.WriteString("Insert parents before children: ")
	names := make([]string, len(models.EntityTypes))
	for i, t := range models.EntityTypes {
		names[i] = models.TableName(t)
	}
	prompt.WriteString(strings.Join(names, ", then "))
	prompt.WriteString(". Keep the rows of each table in the order they appear in the data.\n\n")

	prompt.WriteString("## Data\n\n")
	prompt.WriteString("```json\n")
	prompt.Write(data)
	prompt.WriteString("\n```\n\n")

	prompt.WriteString("## Output Format\n\n")
	prompt.WriteString("Return ONLY the INSERT statements. No CREATE TABLE or other DDL, no transaction statements, ")
	prompt.WriteString("no SET IDENTITY_INSERT, no comments, no explanations, no Markdown.\n")

	return &SeedPrompt{
		System: BuildSeedSystemMessage(),
		User:   prompt.String(),
	}, nil
}

// BuildSeedSystemMessage returns the system message for seed generation.
func BuildSeedSystemMessage() string {
	return `You are a database seed data expert. You translate structured records into exact, executable SQL INSERT statements and output nothing else.`
}

type seedDocument struct {
	JobPositions  []jobPositionRow  `json:"job_positions"`
	QuestionBanks []questionBankRow `json:"question_banks"`
	Questions     []questionRow     `json:"questions"`
	Options       []optionRow       `json:"options"`
}

type jobPositionRow struct {
	ID          any     `json:"id"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
}

type questionBankRow struct {
	ID            any    `json:"id"`
	JobPositionID any    `json:"job_position_id"`
	Name          string `json:"name"`
	Level         string `json:"level"`
}

type questionRow struct {
	ID             any    `json:"id"`
	QuestionBankID any    `json:"question_bank_id"`
	Text           string `json:"text"`
	Position       int    `json:"position"`
}

type optionRow struct {
	ID         any    `json:"id"`
	QuestionID any    `json:"question_id"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"is_correct"`
	Position   int    `json:"position"`
}

// seedData serializes the run as indented JSON, one array per table in run
// order. Autoincrement ids are emitted as JSON numbers.
func seedData(a *identity.Assignment) ([]byte, error) {
	run := a.Run()
	idOf := func(ref models.Ref) any {
		id, _ := a.ID(ref)
		if a.Mode() == models.IDModeAutoincrement {
			return json.Number(id)
		}
		return id
	}
	parentOf := func(ref models.Ref) any {
		parent, _ := run.Parent(ref)
		return idOf(parent)
	}

	doc := seedDocument{
		JobPositions:  []jobPositionRow{},
		QuestionBanks: []questionBankRow{},
		Questions:     []questionRow{},
		Options:       []optionRow{},
	}
	for _, e := range run.JobPositions() {
		row := jobPositionRow{ID: idOf(e.Ref), Title: e.JobPosition.Title()}
		if d := e.JobPosition.Description(); d != "" {
			row.Description = &d
		}
		doc.JobPositions = append(doc.JobPositions, row)
	}
	for _, e := range run.QuestionBanks() {
		doc.QuestionBanks = append(doc.QuestionBanks, questionBankRow{
			ID:            idOf(e.Ref),
			JobPositionID: parentOf(e.Ref),
			Name:          e.QuestionBank.Name(),
			Level:         string(e.QuestionBank.Level()),
		})
	}
	for _, e := range run.Questions() {
		doc.Questions = append(doc.Questions, questionRow{
			ID:             idOf(e.Ref),
			QuestionBankID: parentOf(e.Ref),
			Text:           e.Question.Text(),
			Position:       e.Position,
		})
	}
	for _, e := range run.Options() {
		doc.Options = append(doc.Options, optionRow{
			ID:         idOf(e.Ref),
			QuestionID: parentOf(e.Ref),
			Text:       e.Option.Text(),
			IsCorrect:  e.Option.IsCorrect(),
			Position:   e.Position,
		})
	}

	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return []byte(strings.TrimRight(buf.String(), "\n")), nil
}
