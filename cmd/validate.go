package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-seed/pkg/models"
	"github.com/ekaya-inc/ekaya-seed/pkg/services"
)

func newValidateCmd(a *app) *cobra.Command {
	var (
		flags   seedFlags
		sqlPath string
		idsPath string
		output  string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a saved model response offline",
		Long: `Check a model response against a seed file without calling a model.

Identifiers come from --ids (written by "seedgen prompt --ids-out"). In
autoincrement mode they can be left out and are reassigned from the base.
A clean response is normalized and printed like a generate run.`,
		Example: `  seedgen validate -f seed.yaml --sql response.sql
  seedgen validate -f seed.yaml --sql response.txt --ids ids.json -o seed.sql`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := a.request(cmd, &flags, "")
			if err != nil {
				return err
			}
			response, err := os.ReadFile(sqlPath)
			if err != nil {
				return inputError("reading model response", err)
			}

			svc := services.NewSeedGenerationService(a.factory(), services.SeedGenerationConfig{}, a.logger)
			stderr := cmd.ErrOrStderr()

			var run *services.PreparedRun
			if idsPath != "" {
				ids, err := readIDsFile(idsPath)
				if err != nil {
					return inputError("loading identifiers", err)
				}
				if !cmd.Flags().Changed("id-mode") {
					req.IDMode = ids.IDMode
				}
				run, err = services.RestorePreparedRun(req, ids.IDs)
				if err != nil {
					return inputError("restoring identifiers", err)
				}
				if ids.PromptFingerprint != "" && ids.PromptFingerprint != run.Prompt.Fingerprint() {
					printWarning(stderr, "prompt differs from the one saved with %s; settings or seed file changed", idsPath)
				}
			} else {
				if req.IDMode == models.IDModeUUID {
					return inputError("--ids is required in uuid mode", nil)
				}
				run, err = svc.Prepare(req)
				if err != nil {
					return inputError("preparing run", err)
				}
			}

			result := svc.ValidateResponse(run, string(response))
			if !result.OK() {
				printDefects(stderr, result)
				return &ExitError{Code: ExitDefects, Message: fmt.Sprintf("response has %d defect(s)", len(result.Defects))}
			}

			if err := writeOutput(cmd, output, result.Script); err != nil {
				return &ExitError{Code: ExitGeneral, Message: "writing script", Err: err}
			}
			printSummary(stderr, result)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&sqlPath, "sql", "", "file holding the model response")
	cmd.Flags().StringVar(&idsPath, "ids", "", "identifier assignment saved by prompt --ids-out")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the normalized script to this file instead of stdout")
	_ = cmd.MarkFlagRequired("sql")
	return cmd
}
