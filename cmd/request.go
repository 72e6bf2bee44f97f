package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-seed/pkg/models"
	"github.com/ekaya-inc/ekaya-seed/pkg/seedfile"
)

// seedFlags are the generation settings shared by generate, prompt and
// validate. Precedence: flag > seed file > config.
type seedFlags struct {
	file    string
	dialect string
	idMode  string
	base    int
	model   string
}

func (f *seedFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "seed file (YAML or JSON)")
	cmd.Flags().StringVar(&f.dialect, "dialect", "", "SQL dialect: mysql, postgresql or sqlserver")
	cmd.Flags().StringVar(&f.idMode, "id-mode", "", "identifier mode: uuid or autoincrement")
	cmd.Flags().IntVar(&f.base, "base", 0, "first ID per table in autoincrement mode")
	cmd.Flags().StringVar(&f.model, "model", "", "model name")
	_ = cmd.MarkFlagRequired("file")
}

// request loads the seed file and applies config defaults and flag overrides.
func (a *app) request(cmd *cobra.Command, f *seedFlags, apiKey string) (*models.GenerationRequest, error) {
	file, err := seedfile.Load(f.file)
	if err != nil {
		return nil, inputError("loading seed file", err)
	}
	defaults, err := seedfile.DefaultsFromConfig(a.cfg)
	if err != nil {
		return nil, configError("reading seed defaults", err)
	}
	req, err := file.Request(defaults, "")
	if err != nil {
		return nil, inputError("building seed run", err)
	}

	if cmd.Flags().Changed("dialect") {
		if req.Dialect, err = models.ParseDialect(f.dialect); err != nil {
			return nil, inputError("--dialect", err)
		}
	}
	if cmd.Flags().Changed("id-mode") {
		if req.IDMode, err = models.ParseIDMode(f.idMode); err != nil {
			return nil, inputError("--id-mode", err)
		}
	}
	if cmd.Flags().Changed("base") {
		req.AutoincrementBase = f.base
	}
	if cmd.Flags().Changed("model") {
		req.Model = f.model
	}
	req.APIKey = a.apiKey(apiKey, req.Model)

	if err := req.Validate(); err != nil {
		return nil, inputError("invalid request", err)
	}
	return req, nil
}

// idsFile is the identifier assignment saved by `prompt --ids-out` and read
// by `validate --ids`.
type idsFile struct {
	IDMode            models.IDMode                  `json:"id_mode"`
	PromptFingerprint string                         `json:"prompt_fingerprint"`
	IDs               map[models.EntityType][]string `json:"ids"`
}

func writeIDsFile(path string, ids *idsFile) error {
	data, err := json.MarshalIndent(ids, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ids: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write ids file: %w", err)
	}
	return nil
}

func readIDsFile(path string) (*idsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ids file: %w", err)
	}
	var ids idsFile
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("decode ids file: %w", err)
	}
	if _, err := models.ParseIDMode(string(ids.IDMode)); err != nil {
		return nil, fmt.Errorf("ids file: %w", err)
	}
	return &ids, nil
}

func writeOutput(cmd *cobra.Command, path, content string) error {
	if path == "" || path == "-" {
		_, err := fmt.Fprint(cmd.OutOrStdout(), content)
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
