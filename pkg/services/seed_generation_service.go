package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-seed/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-seed/pkg/audit"
	"github.com/ekaya-inc/ekaya-seed/pkg/identity"
	"github.com/ekaya-inc/ekaya-seed/pkg/llm"
	"github.com/ekaya-inc/ekaya-seed/pkg/logging"
	"github.com/ekaya-inc/ekaya-seed/pkg/models"
	"github.com/ekaya-inc/ekaya-seed/pkg/prompts"
	"github.com/ekaya-inc/ekaya-seed/pkg/retry"
	seedsql "github.com/ekaya-inc/ekaya-seed/pkg/sql"
)

// SeedGenerationService runs the seed pipeline: identifiers, prompt,
// generation call, validation.
type SeedGenerationService interface {
	// Prepare validates the request, assigns identifiers and builds the
	// prompt without any network call.
	Prepare(req *models.GenerationRequest) (*PreparedRun, error)

	// Generate runs the whole pipeline. Defects in the returned SQL are
	// reported in the result, not as an error. Only one run may be in flight;
	// a concurrent call returns apperrors.ErrConflict.
	Generate(ctx context.Context, req *models.GenerationRequest) (*models.GenerationResult, error)

	// ValidateResponse checks a saved model response against a prepared run.
	ValidateResponse(run *PreparedRun, response string) *models.GenerationResult
}

// PreparedRun is a request with its identifiers assigned and prompt built.
type PreparedRun struct {
	Dialect    models.Dialect
	Model      string
	Assignment *identity.Assignment
	Prompt     *prompts.SeedPrompt
}

// SeedGenerationConfig tunes the pipeline.
type SeedGenerationConfig struct {
	Temperature float64
	// Retry is applied around the generation call. Nil or zero MaxRetries
	// means a single attempt.
	Retry *retry.Config
}

type seedGenerationService struct {
	llmFactory llm.LLMClientFactory
	cfg        SeedGenerationConfig
	inFlight   sync.Mutex
	auditor    *audit.SecurityAuditor
	logger     *zap.Logger
}

// NewSeedGenerationService creates the pipeline service.
func NewSeedGenerationService(llmFactory llm.LLMClientFactory, cfg SeedGenerationConfig, logger *zap.Logger) SeedGenerationService {
	if cfg.Temperature == 0 {
		cfg.Temperature = prompts.DefaultSeedTemperature
	}
	return &seedGenerationService{
		llmFactory: llmFactory,
		cfg:        cfg,
		auditor:    audit.NewSecurityAuditor(logger),
		logger:     logger.Named("seed-generation"),
	}
}

var _ SeedGenerationService = (*seedGenerationService)(nil)

func (s *seedGenerationService) Prepare(req *models.GenerationRequest) (*PreparedRun, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", apperrors.ErrInvalidInput)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	dialect, _ := models.ParseDialect(string(req.Dialect))
	mode, _ := models.ParseIDMode(string(req.IDMode))

	strategy, err := identity.NewStrategy(mode, identity.WithBase(req.AutoincrementBase))
	if err != nil {
		return nil, err
	}
	assignment, err := strategy.Assign(req.Run)
	if err != nil {
		return nil, fmt.Errorf("assign identifiers: %w", err)
	}
	return NewPreparedRun(dialect, req.Model, assignment)
}

// NewPreparedRun builds the prompt for an existing assignment, e.g. one
// restored from a saved ids file.
func NewPreparedRun(dialect models.Dialect, model string, assignment *identity.Assignment) (*PreparedRun, error) {
	prompt, err := prompts.BuildSeedPrompt(prompts.SeedPromptInput{
		Dialect:    dialect,
		Assignment: assignment,
	})
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	return &PreparedRun{
		Dialect:    dialect,
		Model:      llm.NormalizeModelName(model),
		Assignment: assignment,
		Prompt:     prompt,
	}, nil
}

// RestorePreparedRun rebuilds a prepared run from a request and the
// identifiers saved when its prompt was built.
func RestorePreparedRun(req *models.GenerationRequest, ids map[models.EntityType][]string) (*PreparedRun, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	dialect, _ := models.ParseDialect(string(req.Dialect))
	mode, _ := models.ParseIDMode(string(req.IDMode))

	assignment, err := identity.Restore(req.Run, mode, ids)
	if err != nil {
		return nil, fmt.Errorf("restore identifiers: %w", err)
	}
	return NewPreparedRun(dialect, req.Model, assignment)
}

func (s *seedGenerationService) Generate(ctx context.Context, req *models.GenerationRequest) (*models.GenerationResult, error) {
	if !s.inFlight.TryLock() {
		return nil, apperrors.ErrConflict
	}
	defer s.inFlight.Unlock()

	start := time.Now()
	runID := uuid.New().String()
	logger := s.logger.With(zap.String("run_id", runID))

	run, err := s.Prepare(req)
	if err != nil {
		logger.Info("Seed request rejected", zap.Error(err))
		return nil, err
	}

	logger.Info("Generating seed script",
		zap.String("dialect", string(run.Dialect)),
		zap.String("id_mode", string(run.Assignment.Mode())),
		zap.String("model", run.Model),
		zap.Int("job_positions", run.Assignment.Count(models.EntityJobPosition)),
		zap.Int("question_banks", run.Assignment.Count(models.EntityQuestionBank)),
		zap.Int("questions", run.Assignment.Count(models.EntityQuestion)),
		zap.Int("options", run.Assignment.Count(models.EntityOption)),
		zap.String("prompt_fingerprint", run.Prompt.Fingerprint()))

	for _, finding := range seedsql.CheckSeedRun(req.Run) {
		s.auditor.LogSuspiciousText(runID, audit.SuspiciousTextDetails{
			Field:       finding.Field,
			Value:       finding.Value,
			Fingerprint: finding.Fingerprint,
		})
	}

	client, err := s.llmFactory.CreateForRequest(run.Model, req.APIKey)
	if err != nil {
		return nil, err
	}

	callCtx := llm.WithRequestID(ctx, runID)
	retryCfg := s.retryConfig(logger)
	resp, err := retry.DoWithResultIfRetryable(callCtx, retryCfg, func() (*llm.GenerateResponseResult, error) {
		return client.GenerateResponse(callCtx, run.Prompt.User, run.Prompt.System, s.cfg.Temperature)
	})
	if err != nil {
		logger.Error("Seed generation failed",
			zap.String("error_type", string(llm.GetErrorType(err))),
			zap.String("error", logging.SanitizeError(err)),
			zap.Duration("elapsed", time.Since(start)))
		if llm.GetErrorType(err) == llm.ErrorTypeAuth {
			s.auditor.LogProviderAuthFailure(runID, audit.ProviderAuthDetails{
				Model:    client.GetModel(),
				Endpoint: client.GetEndpoint(),
			})
		}
		return nil, fmt.Errorf("generate seed script: %w", err)
	}

	result := s.ValidateResponse(run, resp.Content)
	result.Model = client.GetModel()

	if len(result.Defects) > 0 {
		kinds := defectCounts(result.Defects)
		logger.Warn("Generated script failed validation",
			zap.Int("defects", len(result.Defects)),
			zap.Any("defect_kinds", kinds),
			zap.Int("total_tokens", resp.TotalTokens),
			zap.Duration("elapsed", time.Since(start)))
		s.auditor.LogScriptRejected(runID, kinds)
	} else {
		logger.Info("Seed script generated",
			zap.Int("statements", len(result.Statements)),
			zap.Int("total_tokens", resp.TotalTokens),
			zap.Duration("elapsed", time.Since(start)))
	}
	return result, nil
}

func (s *seedGenerationService) ValidateResponse(run *PreparedRun, response string) *models.GenerationResult {
	report := seedsql.NewSeedValidator(run.Dialect, run.Assignment).Validate(response)
	result := &models.GenerationResult{
		Defects: report.Defects,
		Model:   run.Model,
	}
	if run.Prompt != nil {
		result.PromptFingerprint = run.Prompt.Fingerprint()
	}
	if report.OK() {
		result.Script = report.Script
		result.Statements = report.Statements
	}
	return result
}

// retryConfig returns the configured policy with retry attempts logged.
func (s *seedGenerationService) retryConfig(logger *zap.Logger) *retry.Config {
	base := s.cfg.Retry
	if base == nil {
		base = retry.DefaultConfig()
	}
	cfg := *base
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.Warn("Retrying seed generation",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.String("error_type", string(llm.GetErrorType(err))),
			zap.String("error", logging.SanitizeError(err)))
	}
	return &cfg
}

func defectCounts(defects []models.Defect) map[string]int {
	counts := make(map[string]int)
	for _, d := range defects {
		counts[string(d.Kind)]++
	}
	return counts
}
