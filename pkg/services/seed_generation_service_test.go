package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-seed/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-seed/pkg/identity"
	"github.com/ekaya-inc/ekaya-seed/pkg/llm"
	"github.com/ekaya-inc/ekaya-seed/pkg/models"
	"github.com/ekaya-inc/ekaya-seed/pkg/retry"
)

const testAPIKey = "sk-test-secret-key-1234567890"

func seedRun(t *testing.T) *models.SeedRun {
	t.Helper()
	run := models.NewSeedRun()

	jp, err := models.NewJobPosition("Backend Engineer", "Builds services")
	require.NoError(t, err)
	jpRef, err := run.AddJobPosition(jp)
	require.NoError(t, err)

	bank, err := models.NewQuestionBank(jpRef, "Core Concepts", models.LevelHigh)
	require.NoError(t, err)
	bankRef, err := run.AddQuestionBank(bank)
	require.NoError(t, err)

	right, err := models.NewOption("A lightweight thread", true)
	require.NoError(t, err)
	wrong, err := models.NewOption("A package manager", false)
	require.NoError(t, err)
	q, err := models.NewQuestion(bankRef, "What is a goroutine?", []models.Option{right, wrong})
	require.NoError(t, err)
	_, err = run.AddQuestion(q)
	require.NoError(t, err)
	return run
}

func seedRequest(t *testing.T) *models.GenerationRequest {
	return &models.GenerationRequest{
		Dialect:           models.DialectPostgreSQL,
		IDMode:            models.IDModeAutoincrement,
		AutoincrementBase: 1,
		Model:             "gpt-4o-mini",
		APIKey:            testAPIKey,
		Run:               seedRun(t),
	}
}

const validResponse = "```sql\n" +
	`INSERT INTO "job_positions" ("id", "title", "description") VALUES (1, 'Backend Engineer', 'Builds services');
INSERT INTO "question_banks" ("id", "job_position_id", "name", "level") VALUES (1, 1, 'Core Concepts', 'high');
INSERT INTO "questions" ("id", "question_bank_id", "text", "position") VALUES (1, 1, 'What is a goroutine?', 1);
INSERT INTO "options" ("id", "question_id", "text", "is_correct", "position") VALUES (1, 1, 'A lightweight thread', TRUE, 1), (2, 1, 'A package manager', FALSE, 2);
` + "```\n"

func newTestService(factory llm.LLMClientFactory, cfg SeedGenerationConfig) (SeedGenerationService, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewSeedGenerationService(factory, cfg, zap.New(core)), logs
}

func TestSeedGeneration_Generate_Success(t *testing.T) {
	factory := llm.NewMockClientFactory()
	factory.MockClient.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (*llm.GenerateResponseResult, error) {
		assert.NotEmpty(t, llm.RequestIDFromContext(ctx), "run id must travel with the call")
		assert.Equal(t, 0.3, temperature)
		return &llm.GenerateResponseResult{Content: validResponse, TotalTokens: 321}, nil
	}
	svc, logs := newTestService(factory, SeedGenerationConfig{})

	result, err := svc.Generate(context.Background(), seedRequest(t))

	require.NoError(t, err)
	require.True(t, result.OK(), "defects: %v", result.Defects)
	assert.Equal(t, "gpt-4o-mini", result.Model)
	assert.Len(t, result.PromptFingerprint, 64)
	assert.Equal(t, []string{
		`INSERT INTO "job_positions" ("id","title","description") VALUES (1,'Backend Engineer','Builds services');`,
		`SELECT setval(pg_get_serial_sequence('"job_positions"', 'id'), (SELECT MAX("id") FROM "job_positions"));`,
		`INSERT INTO "question_banks" ("id","job_position_id","name","level") VALUES (1,1,'Core Concepts','high');`,
		`SELECT setval(pg_get_serial_sequence('"question_banks"', 'id'), (SELECT MAX("id") FROM "question_banks"));`,
		`INSERT INTO "questions" ("id","question_bank_id","text","position") VALUES (1,1,'What is a goroutine?',1);`,
		`SELECT setval(pg_get_serial_sequence('"questions"', 'id'), (SELECT MAX("id") FROM "questions"));`,
		`INSERT INTO "options" ("id","question_id","text","is_correct","position") VALUES (1,1,'A lightweight thread',TRUE,1),(2,1,'A package manager',FALSE,2);`,
		`SELECT setval(pg_get_serial_sequence('"options"', 'id'), (SELECT MAX("id") FROM "options"));`,
	}, result.Statements)

	assert.Equal(t, []string{testAPIKey}, factory.Keys)
	assert.Equal(t, 1, factory.MockClient.GenerateResponseCalls)
	assert.Contains(t, factory.MockClient.LastPrompt, "Backend Engineer")
	assert.NotContains(t, factory.MockClient.LastPrompt, testAPIKey)
	assert.NotContains(t, factory.MockClient.LastSystemMessage, testAPIKey)

	for _, entry := range logs.All() {
		assert.NotContains(t, entry.Message, testAPIKey)
		for _, field := range entry.Context {
			assert.NotContains(t, field.String, testAPIKey, "field %s", field.Key)
		}
	}
	assert.Equal(t, 1, logs.FilterMessage("Seed script generated").Len())
}

func TestSeedGeneration_Generate_DefectsAreReportedNotErrors(t *testing.T) {
	factory := llm.NewMockClientFactory()
	factory.MockClient.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (*llm.GenerateResponseResult, error) {
		broken := strings.Replace(validResponse, "VALUES (1, 1, 'Core Concepts'", "VALUES (1, 99, 'Core Concepts'", 1)
		return &llm.GenerateResponseResult{Content: broken}, nil
	}
	svc, logs := newTestService(factory, SeedGenerationConfig{})

	result, err := svc.Generate(context.Background(), seedRequest(t))

	require.NoError(t, err)
	assert.False(t, result.OK())
	assert.Empty(t, result.Script)
	assert.Empty(t, result.Statements)
	require.Len(t, result.Defects, 1)
	assert.Equal(t, models.DefectDanglingReference, result.Defects[0].Kind)
	assert.Equal(t, 1, logs.FilterMessage("Generated script failed validation").Len())
	assert.Equal(t, 1, logs.FilterMessage("Seed script rejected").Len())
}

func TestSeedGeneration_Generate_InvalidRequestMakesNoCall(t *testing.T) {
	factory := llm.NewMockClientFactory()
	svc, _ := newTestService(factory, SeedGenerationConfig{})

	req := seedRequest(t)
	req.Dialect = "sqlite"

	_, err := svc.Generate(context.Background(), req)

	require.Error(t, err)
	assert.True(t, models.IsValidationError(err))
	assert.Empty(t, factory.Keys)
	assert.Equal(t, 0, factory.MockClient.GenerateResponseCalls)
}

func TestSeedGeneration_Generate_ClientErrorIsWrapped(t *testing.T) {
	factory := llm.NewMockClientFactory()
	factory.MockClient.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (*llm.GenerateResponseResult, error) {
		return nil, llm.NewError(llm.ErrorTypeAuth, "invalid API key", false, errors.New("HTTP 401: bad key "+testAPIKey))
	}
	svc, logs := newTestService(factory, SeedGenerationConfig{})

	_, err := svc.Generate(context.Background(), seedRequest(t))

	require.Error(t, err)
	assert.Equal(t, llm.ErrorTypeAuth, llm.GetErrorType(err))
	failed := logs.FilterMessage("Seed generation failed").All()
	require.Len(t, failed, 1)
	for _, field := range failed[0].Context {
		assert.NotContains(t, field.String, testAPIKey)
	}

	rejected := logs.FilterMessage("Provider rejected API key").All()
	require.Len(t, rejected, 1)
	assert.Equal(t, "security_audit", rejected[0].LoggerName)
	assert.Equal(t, "mock-model", rejected[0].ContextMap()["model"])
	for _, field := range rejected[0].Context {
		assert.NotContains(t, field.String, testAPIKey)
	}
}

func TestSeedGeneration_Generate_AuditsSuspiciousText(t *testing.T) {
	factory := llm.NewMockClientFactory()
	factory.MockClient.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (*llm.GenerateResponseResult, error) {
		return &llm.GenerateResponseResult{Content: "no sql here"}, nil
	}
	svc, logs := newTestService(factory, SeedGenerationConfig{})

	req := seedRequest(t)
	jp, err := models.NewJobPosition("'; DROP TABLE users--", "")
	require.NoError(t, err)
	_, err = req.Run.AddJobPosition(jp)
	require.NoError(t, err)

	_, err = svc.Generate(context.Background(), req)
	require.NoError(t, err)

	suspicious := logs.FilterMessage("Suspicious seed text detected").All()
	require.Len(t, suspicious, 1)
	assert.Equal(t, "job_position#1.title", suspicious[0].ContextMap()["field"])
	assert.Equal(t, 1, factory.MockClient.GenerateResponseCalls, "suspicious text is still seeded")
}

func TestSeedGeneration_Generate_RetriesTransientErrors(t *testing.T) {
	factory := llm.NewMockClientFactory()
	calls := 0
	factory.MockClient.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (*llm.GenerateResponseResult, error) {
		calls++
		if calls == 1 {
			return nil, llm.NewError(llm.ErrorTypeRateLimited, "rate limited", true, nil)
		}
		return &llm.GenerateResponseResult{Content: validResponse}, nil
	}
	svc, logs := newTestService(factory, SeedGenerationConfig{
		Retry: &retry.Config{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
	})

	result, err := svc.Generate(context.Background(), seedRequest(t))

	require.NoError(t, err)
	assert.True(t, result.OK())
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, logs.FilterMessage("Retrying seed generation").Len())
}

func TestSeedGeneration_Generate_NoRetryByDefault(t *testing.T) {
	factory := llm.NewMockClientFactory()
	factory.MockClient.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (*llm.GenerateResponseResult, error) {
		return nil, llm.NewError(llm.ErrorTypeUnavailable, "server error", true, nil)
	}
	svc, _ := newTestService(factory, SeedGenerationConfig{})

	_, err := svc.Generate(context.Background(), seedRequest(t))

	require.Error(t, err)
	assert.Equal(t, 1, factory.MockClient.GenerateResponseCalls)
}

func TestSeedGeneration_Generate_SecondRunConflicts(t *testing.T) {
	factory := llm.NewMockClientFactory()
	started := make(chan struct{})
	release := make(chan struct{})
	factory.MockClient.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (*llm.GenerateResponseResult, error) {
		close(started)
		<-release
		return &llm.GenerateResponseResult{Content: validResponse}, nil
	}
	svc, _ := newTestService(factory, SeedGenerationConfig{})

	first, second := seedRequest(t), seedRequest(t)

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		_, firstErr = svc.Generate(context.Background(), first)
	}()
	<-started

	_, err := svc.Generate(context.Background(), second)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	close(release)
	wg.Wait()
	assert.NoError(t, firstErr)
}

func TestSeedGeneration_Generate_Canceled(t *testing.T) {
	factory := llm.NewMockClientFactory()
	factory.MockClient.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (*llm.GenerateResponseResult, error) {
		<-ctx.Done()
		return nil, llm.NewError(llm.ErrorTypeCanceled, "request canceled", false, ctx.Err())
	}
	svc, _ := newTestService(factory, SeedGenerationConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Generate(ctx, seedRequest(t))

	require.Error(t, err)
	assert.Equal(t, llm.ErrorTypeCanceled, llm.GetErrorType(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSeedGeneration_Prepare_IsOffline(t *testing.T) {
	factory := llm.NewMockClientFactory()
	svc, _ := newTestService(factory, SeedGenerationConfig{})

	req := seedRequest(t)
	req.Model = "pgt-4o-mini"
	run, err := svc.Prepare(req)

	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", run.Model)
	assert.Equal(t, models.DialectPostgreSQL, run.Dialect)
	assert.Equal(t, 2, run.Assignment.Count(models.EntityOption))
	assert.Contains(t, run.Prompt.User, "PostgreSQL")
	assert.Empty(t, factory.Keys)

	again, err := svc.Prepare(req)
	require.NoError(t, err)
	assert.Equal(t, run.Prompt.Fingerprint(), again.Prompt.Fingerprint(), "autoincrement prompts are reproducible")
}

func TestSeedGeneration_ValidateResponse_RestoredAssignment(t *testing.T) {
	svc, _ := newTestService(llm.NewMockClientFactory(), SeedGenerationConfig{})
	req := seedRequest(t)
	req.IDMode = models.IDModeUUID

	prepared, err := svc.Prepare(req)
	require.NoError(t, err)

	restored, err := identity.Restore(req.Run, models.IDModeUUID, prepared.Assignment.Export())
	require.NoError(t, err)
	run, err := NewPreparedRun(models.DialectPostgreSQL, "gpt-4o-mini", restored)
	require.NoError(t, err)
	assert.Equal(t, prepared.Prompt.Fingerprint(), run.Prompt.Fingerprint())

	result := svc.ValidateResponse(run, validResponse)
	assert.False(t, result.OK(), "integer ids are not valid in uuid mode")
	assert.NotEmpty(t, result.Defects)
	assert.Equal(t, run.Prompt.Fingerprint(), result.PromptFingerprint)
}

func TestRestorePreparedRun(t *testing.T) {
	svc, _ := newTestService(llm.NewMockClientFactory(), SeedGenerationConfig{})
	req := seedRequest(t)

	prepared, err := svc.Prepare(req)
	require.NoError(t, err)

	run, err := RestorePreparedRun(req, prepared.Assignment.Export())
	require.NoError(t, err)
	assert.Equal(t, prepared.Prompt.Fingerprint(), run.Prompt.Fingerprint())
	assert.True(t, svc.ValidateResponse(run, validResponse).OK())

	ids := prepared.Assignment.Export()
	ids[models.EntityOption] = ids[models.EntityOption][:1]
	_, err = RestorePreparedRun(req, ids)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "restore identifiers")
}
