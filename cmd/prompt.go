package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-seed/pkg/services"
)

func newPromptCmd(a *app) *cobra.Command {
	var (
		flags  seedFlags
		idsOut string
	)

	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Print the generation prompt without calling a model",
		Long: `Print the exact system and user messages a generate run would send.
No network call is made and no API key is needed.

With --ids-out the identifier assignment is saved so a response produced
elsewhere can be checked later with "seedgen validate --ids".`,
		Example: `  seedgen prompt -f seed.yaml
  seedgen prompt -f seed.yaml --id-mode uuid --ids-out ids.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := a.request(cmd, &flags, "")
			if err != nil {
				return err
			}

			svc := services.NewSeedGenerationService(a.factory(), services.SeedGenerationConfig{}, a.logger)
			run, err := svc.Prepare(req)
			if err != nil {
				return inputError("preparing prompt", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "-- system --")
			fmt.Fprintln(out, run.Prompt.System)
			fmt.Fprintln(out, "-- user --")
			fmt.Fprintln(out, run.Prompt.User)

			fingerprint := run.Prompt.Fingerprint()
			stderr := cmd.ErrOrStderr()
			labelColor.Fprint(stderr, "prompt fingerprint: ")
			fmt.Fprintln(stderr, fingerprint)

			if idsOut != "" {
				ids := &idsFile{
					IDMode:            run.Assignment.Mode(),
					PromptFingerprint: fingerprint,
					IDs:               run.Assignment.Export(),
				}
				if err := writeIDsFile(idsOut, ids); err != nil {
					return &ExitError{Code: ExitGeneral, Message: "saving identifiers", Err: err}
				}
				labelColor.Fprint(stderr, "identifiers saved: ")
				fmt.Fprintln(stderr, idsOut)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&idsOut, "ids-out", "", "save the identifier assignment to this JSON file")
	return cmd
}
