package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/ekaya-inc/ekaya-seed/pkg/models"
)

var (
	okColor    = color.New(color.FgGreen, color.Bold)
	errColor   = color.New(color.FgRed, color.Bold)
	warnColor  = color.New(color.FgYellow)
	labelColor = color.New(color.FgCyan)
	faintColor = color.New(color.Faint)
)

// printSummary reports an accepted script on w (stderr), leaving stdout
// for the script itself.
func printSummary(w io.Writer, result *models.GenerationResult) {
	okColor.Fprintf(w, "✓ script accepted: %d statements\n", len(result.Statements))
	labelColor.Fprint(w, "  model: ")
	fmt.Fprintln(w, result.Model)
	labelColor.Fprint(w, "  prompt fingerprint: ")
	fmt.Fprintln(w, result.PromptFingerprint)
}

// printDefects lists every defect; the script is withheld.
func printDefects(w io.Writer, result *models.GenerationResult) {
	errColor.Fprintf(w, "✗ script rejected: %d defect(s)\n", len(result.Defects))
	for _, d := range result.Defects {
		warnColor.Fprintf(w, "  %-20s", d.Kind)
		if d.Line > 0 {
			fmt.Fprintf(w, " line %-4d", d.Line)
		}
		fmt.Fprintf(w, " %s\n", d.Message)
		if d.Snippet != "" {
			faintColor.Fprintf(w, "      %s\n", d.Snippet)
		}
	}
	labelColor.Fprint(w, "  prompt fingerprint: ")
	fmt.Fprintln(w, result.PromptFingerprint)
}

func printWarning(w io.Writer, format string, args ...any) {
	warnColor.Fprintf(w, "! "+format+"\n", args...)
}
