package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/wirelab/internal/store"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a workspace file",
	Long: `Validate a workspace file (JSON, YAML or TOML) and report every problem:
schema field errors, dangling enum, count, protocol and template references.

File format is auto-detected from extension (.json, .yaml, .yml, .toml).

Examples:
  wirelab validate -f workspace.json
  wirelab validate -w workspace.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		path := validateFile
		if path == "" {
			path = loadConfig().Workspace
		}
		if err := runValidate(os.Stdout, path); err != nil {
			os.Exit(1)
		}
	},
}

var validateFile string

func init() {
	validateCmd.Flags().StringVarP(&validateFile, "file", "f", "",
		"workspace file to validate (default: configured workspace)")
}

func runValidate(w io.Writer, path string) error {
	ws, err := store.Load(path)
	if err != nil {
		fmt.Fprintf(w, "INVALID: %v\n", err)
		return err
	}

	if err := ws.Validate(); err != nil {
		var joined interface{ Unwrap() []error }
		if errors.As(err, &joined) {
			for _, e := range joined.Unwrap() {
				fmt.Fprintf(w, "INVALID: %v\n", e)
			}
		} else {
			fmt.Fprintf(w, "INVALID: %v\n", err)
		}
		return err
	}

	fmt.Fprintf(w, "VALID: %s: %d protocol(s), %d enum(s), %d template(s), %d reply rule(s)\n",
		path, len(ws.Protocols), len(ws.Enums), len(ws.Templates), len(ws.ReplyRules))
	return nil
}
