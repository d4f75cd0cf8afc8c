package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/wirelab/internal/service"
	"firestige.xyz/wirelab/plugins/parser/stun"
)

var matchCmd = &cobra.Command{
	Use:   "match [hex...]",
	Short: "Identify which template or parser recognises hex bytes",
	Long: `Identify hex bytes. Templates are tried in workspace order, then the
fixed-format parsers enabled in the config (wirelab.parsers).

Examples:
  wirelab match "abcd 01 00000000000000ff"
  wirelab match -o json < frame.hex`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		ws := loadWorkspace(cfg)
		parsers, err := service.NewParsers(cfg.Parsers)
		if err != nil {
			exitWithError("failed to create parsers", err)
		}
		data, err := readHex(args, os.Stdin)
		if err != nil {
			exitWithError("invalid hex input", err)
		}
		ok, err := runMatch(os.Stdout, service.NewIdentifier(ws, parsers), data, outputFormat)
		if err != nil {
			exitWithError("match failed", err)
		}
		if !ok {
			os.Exit(2)
		}
	},
}

var stunCmd = &cobra.Command{
	Use:   "stun [hex...]",
	Short: "Decode hex bytes as a STUN message",
	Long: `Decode the STUN header and its TLV attributes.

Examples:
  wirelab stun 000100002112a442b7e7a701bc34d686fa87dfae`,
	Run: func(cmd *cobra.Command, args []string) {
		loadConfig()
		data, err := readHex(args, os.Stdin)
		if err != nil {
			exitWithError("invalid hex input", err)
		}
		fields := stun.Decode(data)
		if outputFormat == "json" {
			err = printJSON(os.Stdout, map[string]any{"fields": fields})
		} else {
			err = printFields(os.Stdout, fields)
		}
		if err != nil {
			exitWithError("write failed", err)
		}
	},
}

type matchResult struct {
	Matched    bool   `json:"matched"`
	ProtocolID string `json:"protocolId,omitempty"`
	TemplateID string `json:"templateId,omitempty"`
	Parser     string `json:"parser,omitempty"`
	Fields     any    `json:"fields,omitempty"`
}

// runMatch prints the identification of data and reports whether anything
// matched.
func runMatch(w io.Writer, ident *service.Identifier, data []byte, format string) (bool, error) {
	res := ident.Identify(data)
	if format == "json" {
		return res.Matched(), printJSON(w, matchResult{
			Matched:    res.Matched(),
			ProtocolID: res.ProtocolName(),
			TemplateID: res.TemplateName(),
			Parser:     res.Parser,
			Fields:     res.Fields,
		})
	}

	switch {
	case res.Template != nil:
		fmt.Fprintf(w, "Matched template %s (protocol %s)\n", res.TemplateName(), res.ProtocolName())
	case res.Parser != "":
		fmt.Fprintf(w, "Matched parser %s\n", res.Parser)
	default:
		fmt.Fprintln(w, "No match")
		return false, nil
	}
	return true, printFields(w, res.Fields)
}
