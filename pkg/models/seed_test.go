package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDialect(t *testing.T) {
	tests := []struct {
		input   string
		want    Dialect
		wantErr bool
	}{
		{"mysql", DialectMySQL, false},
		{"MySQL", DialectMySQL, false},
		{"postgresql", DialectPostgreSQL, false},
		{"postgres", DialectPostgreSQL, false},
		{" pg ", DialectPostgreSQL, false},
		{"sqlserver", DialectSQLServer, false},
		{"mssql", DialectSQLServer, false},
		{"oracle", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDialect(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, KindInvalidValue, ValidationErrorKindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseIDMode(t *testing.T) {
	for _, s := range []string{"autoincrement", "AUTO_INCREMENT", "serial", "identity"} {
		got, err := ParseIDMode(s)
		require.NoError(t, err, s)
		assert.Equal(t, IDModeAutoincrement, got)
	}

	got, err := ParseIDMode("UUID")
	require.NoError(t, err)
	assert.Equal(t, IDModeUUID, got)

	_, err = ParseIDMode("snowflake")
	assert.Equal(t, KindInvalidValue, ValidationErrorKindOf(err))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"":      LevelMedium,
		"low":   LevelLow,
		"BAJO":  LevelLow,
		"medio": LevelMedium,
		"High":  LevelHigh,
		"alto":  LevelHigh,
	}
	for input, want := range tests {
		got, err := ParseLevel(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParseLevel("expert")
	assert.Equal(t, KindInvalidValue, ValidationErrorKindOf(err))
}

func TestEntityType_Parent(t *testing.T) {
	_, ok := EntityJobPosition.Parent()
	assert.False(t, ok)

	p, ok := EntityQuestionBank.Parent()
	assert.True(t, ok)
	assert.Equal(t, EntityJobPosition, p)

	p, _ = EntityQuestion.Parent()
	assert.Equal(t, EntityQuestionBank, p)

	p, _ = EntityOption.Parent()
	assert.Equal(t, EntityQuestion, p)
}

func TestNewJobPosition(t *testing.T) {
	jp, err := NewJobPosition("  Backend Engineer ", " Builds APIs ")
	require.NoError(t, err)
	assert.Equal(t, "Backend Engineer", jp.Title())
	assert.Equal(t, "Builds APIs", jp.Description())

	_, err = NewJobPosition("   ", "")
	require.Error(t, err)
	assert.Equal(t, KindEmptyField, ValidationErrorKindOf(err))
}

func TestNewQuestionBank(t *testing.T) {
	jp := Ref{Type: EntityJobPosition, Index: 0}

	b, err := NewQuestionBank(jp, "Go basics", "")
	require.NoError(t, err)
	assert.Equal(t, LevelMedium, b.Level())
	assert.Equal(t, jp, b.JobPosition())

	_, err = NewQuestionBank(jp, "", LevelLow)
	assert.Equal(t, KindEmptyField, ValidationErrorKindOf(err))

	_, err = NewQuestionBank(Ref{Type: EntityQuestion}, "Go basics", LevelLow)
	assert.Equal(t, KindMissingParent, ValidationErrorKindOf(err))

	_, err = NewQuestionBank(jp, "Go basics", Level("extreme"))
	assert.Equal(t, KindInvalidValue, ValidationErrorKindOf(err))
}

func TestNewQuestion(t *testing.T) {
	bank := Ref{Type: EntityQuestionBank, Index: 0}
	right := mustOption(t, "A goroutine", true)
	wrong := mustOption(t, "A thread pool", false)

	t.Run("valid", func(t *testing.T) {
		q, err := NewQuestion(bank, "What does `go f()` start?", []Option{right, wrong})
		require.NoError(t, err)
		assert.Len(t, q.Options(), 2)
		assert.True(t, q.Options()[0].IsCorrect())
	})

	t.Run("no correct option", func(t *testing.T) {
		_, err := NewQuestion(bank, "Q", []Option{wrong})
		assert.Equal(t, KindMissingCorrectOption, ValidationErrorKindOf(err))
	})

	t.Run("no options", func(t *testing.T) {
		_, err := NewQuestion(bank, "Q", nil)
		assert.Equal(t, KindMissingCorrectOption, ValidationErrorKindOf(err))
	})

	t.Run("duplicate option text ignores case and spacing", func(t *testing.T) {
		dup := mustOption(t, "a   GOROUTINE", false)
		_, err := NewQuestion(bank, "Q", []Option{right, dup})
		assert.Equal(t, KindDuplicateName, ValidationErrorKindOf(err))
	})

	t.Run("empty option text", func(t *testing.T) {
		_, err := NewQuestion(bank, "Q", []Option{right, {}})
		assert.Equal(t, KindEmptyField, ValidationErrorKindOf(err))
	})

	t.Run("options are copied", func(t *testing.T) {
		opts := []Option{right, wrong}
		q, err := NewQuestion(bank, "Q", opts)
		require.NoError(t, err)
		opts[0] = wrong
		assert.True(t, q.Options()[0].IsCorrect())
	})
}

func TestNewOption_Empty(t *testing.T) {
	_, err := NewOption(" ", true)
	assert.Equal(t, KindEmptyField, ValidationErrorKindOf(err))
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Kind: KindEmptyField, Entity: EntityJobPosition, Field: "title", Message: "required"}
	assert.Equal(t, "EmptyField: job_position.title: required", err.Error())

	err = &ValidationError{Kind: KindInvalidValue, Field: "dialect", Message: "bad"}
	assert.Equal(t, "InvalidValue: dialect: bad", err.Error())

	assert.True(t, IsValidationError(err))
	assert.False(t, IsValidationError(assert.AnError))
}

func mustOption(t *testing.T, text string, correct bool) Option {
	t.Helper()
	o, err := NewOption(text, correct)
	require.NoError(t, err)
	return o
}
