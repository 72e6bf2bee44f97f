package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-seed/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-seed/pkg/logging"
	"github.com/ekaya-inc/ekaya-seed/pkg/retry"
	"github.com/ekaya-inc/ekaya-seed/pkg/services"
)

func newGenerateCmd(a *app) *cobra.Command {
	var (
		flags   seedFlags
		output  string
		apiKey  string
		retries int
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate and validate a seed script",
		Long: `Generate a seed script for the job positions, question banks, questions and
options in a seed file. The script is printed only when every row, reference
and key checks out; otherwise the defects are listed and nothing is written.

The provider key is read from --api-key, then OPENAI_API_KEY or
ANTHROPIC_API_KEY depending on the model.`,
		Example: `  seedgen generate -f seed.yaml -o seed.sql
  seedgen generate -f seed.yaml --dialect postgresql --id-mode uuid
  seedgen generate -f seed.json --model claude-sonnet-4-5 --retries 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := a.request(cmd, &flags, apiKey)
			if err != nil {
				return err
			}
			if req.APIKey == "" {
				return configError("no API key for model "+req.Model+" (set --api-key or the provider's environment variable)", apperrors.ErrMissingCredential)
			}

			if !cmd.Flags().Changed("retries") {
				retries = a.cfg.LLM.Retries
			}
			svc := services.NewSeedGenerationService(a.factory(), services.SeedGenerationConfig{
				Retry: retry.DefaultConfig().WithRetries(retries),
			}, a.logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := svc.Generate(ctx, req)
			if err != nil {
				return generationError("generation failed", errors.New(logging.SanitizeError(err)))
			}

			stderr := cmd.ErrOrStderr()
			if !result.OK() {
				printDefects(stderr, result)
				return &ExitError{Code: ExitDefects, Message: fmt.Sprintf("generated script has %d defect(s)", len(result.Defects))}
			}

			if err := writeOutput(cmd, output, result.Script); err != nil {
				return &ExitError{Code: ExitGeneral, Message: "writing script", Err: err}
			}
			printSummary(stderr, result)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the script to this file instead of stdout")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "provider API key (prefer the environment)")
	cmd.Flags().IntVar(&retries, "retries", 0, "retry transient provider failures this many times")
	return cmd
}
