// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"firestige.xyz/wirelab/internal/config"
	"firestige.xyz/wirelab/internal/log"
	"firestige.xyz/wirelab/internal/store"
	"firestige.xyz/wirelab/pkg/hexutil"
)

var (
	// Global flags
	configFile    string
	workspaceFile string
	outputFormat  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wirelab",
	Short: "wirelab - schema-driven binary protocol codec and matcher",
	Long: `wirelab decodes and encodes arbitrary binary wire protocols described as
flat field schemas, and identifies which packet template a captured datagram matches.

Features:
  - Decode/encode with per-field algorithms (bcd, longToIp, utf8, c_string, hexStr ...)
  - Enum labels, count-driven arrays
  - Template matching by byte ranges or full equality
  - STUN header and attribute decoding
  - Capture replay, passive interface capture, UDP listening with auto-reply
  - HTTP API`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults only when empty)")
	rootCmd.PersistentFlags().StringVarP(&workspaceFile, "workspace", "w", "",
		"workspace file, overrides wirelab.workspace")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text",
		"output format: text or json")

	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(stunCmd)
	rootCmd.AddCommand(hexCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(sniffCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadConfig loads the global config, applies the workspace flag and
// initializes logging.
func loadConfig() *config.GlobalConfig {
	cfg, err := config.Load(configFile)
	if err != nil {
		exitWithError("failed to load config", err)
	}
	if workspaceFile != "" {
		cfg.Workspace = workspaceFile
	}
	if err := log.Init(cfg.Log); err != nil {
		exitWithError("failed to init logger", err)
	}
	if outputFormat != "text" && outputFormat != "json" {
		exitWithError(fmt.Sprintf("invalid output format %q (must be text/json)", outputFormat), nil)
	}
	return cfg
}

// loadWorkspace reads the configured workspace without creating it.
func loadWorkspace(cfg *config.GlobalConfig) *store.Workspace {
	ws, err := store.Load(cfg.Workspace)
	if err != nil {
		exitWithError(fmt.Sprintf("failed to load workspace %s", cfg.Workspace), err)
	}
	if err := ws.Validate(); err != nil {
		// broken entries are skipped at use, the rest stays usable
		log.GetLogger().WithError(err).WithField("path", cfg.Workspace).Warn("workspace has problems")
	}
	return ws
}

// readHex joins args as hex text; no args or "-" reads stdin.
func readHex(args []string, stdin io.Reader) ([]byte, error) {
	text := strings.Join(args, "")
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		raw, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		text = string(raw)
	}
	return hexutil.ToBuffer(text)
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
