package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/wirelab/internal/store"
	"firestige.xyz/wirelab/pkg/codec"
)

var decodeCmd = &cobra.Command{
	Use:   "decode [hex...]",
	Short: "Decode hex bytes against a protocol schema",
	Long: `Decode hex bytes against a protocol of the workspace.

Hex may be split over several arguments, carry 0x prefixes or spaces,
or be piped on stdin.

Examples:
  wirelab decode -p heartbeat "ab cd 01 02"
  xxd -p frame.bin | wirelab decode -p heartbeat -o json`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		ws := loadWorkspace(cfg)
		data, err := readHex(args, os.Stdin)
		if err != nil {
			exitWithError("invalid hex input", err)
		}
		if err := runDecode(os.Stdout, ws, decodeProtocol, data, outputFormat); err != nil {
			exitWithError("decode failed", err)
		}
	},
}

var decodeProtocol string

func init() {
	decodeCmd.Flags().StringVarP(&decodeProtocol, "protocol", "p", "", "protocol id (required)")
	decodeCmd.MarkFlagRequired("protocol")
}

func runDecode(w io.Writer, ws *store.Workspace, protocolID string, data []byte, format string) error {
	p, err := ws.Protocol(protocolID)
	if err != nil {
		return err
	}
	fields := codec.Decode(data, p, ws.Enums)
	if format == "json" {
		return printJSON(w, map[string]any{"protocolId": p.ID, "fields": fields})
	}
	fmt.Fprintf(w, "Protocol %s (%d bytes)\n", p.ID, len(data))
	return printFields(w, fields)
}
