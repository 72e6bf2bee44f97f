package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-seed/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-seed/pkg/llm"
	"github.com/ekaya-inc/ekaya-seed/pkg/logging"
)

func newCheckCmd(a *app) *cobra.Command {
	var (
		model  string
		apiKey string
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the API key and model with a one-word request",
		RunE: func(cmd *cobra.Command, args []string) error {
			if model == "" {
				model = a.cfg.LLM.Model
			}
			key := a.apiKey(apiKey, model)
			if key == "" {
				return configError("no API key for model "+model, apperrors.ErrMissingCredential)
			}

			client, err := a.factory().CreateForRequest(model, key)
			if err != nil {
				return configError("creating client", errors.New(logging.SanitizeError(err)))
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.LLM.Timeout)
			defer cancel()
			result := llm.NewConnectionChecker().Check(ctx, client)

			stderr := cmd.ErrOrStderr()
			if !result.Success {
				errColor.Fprintf(stderr, "✗ %s\n", result.Message)
				labelColor.Fprint(stderr, "  endpoint: ")
				fmt.Fprintln(stderr, client.GetEndpoint())
				return generationError("check failed", fmt.Errorf("%s (%s)", result.Message, result.ErrorType))
			}
			okColor.Fprintf(stderr, "✓ %s\n", result.Message)
			return nil
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "model to check (default from config)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "provider API key (prefer the environment)")
	return cmd
}
