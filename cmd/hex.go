package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/wirelab/pkg/hexutil"
)

var hexCmd = &cobra.Command{
	Use:   "hex [text...]",
	Short: "Clean hex text and print it in blocks",
	Long: `Strip 0x prefixes and separators from hex text and print it as lowercase
byte blocks.

Examples:
  wirelab hex "0xAB, 0xCD, 0x01"
  wirelab hex -n 8 < dump.txt`,
	Run: func(cmd *cobra.Command, args []string) {
		data, err := readHex(args, os.Stdin)
		if err != nil {
			exitWithError("invalid hex input", err)
		}
		fmt.Println(hexutil.FormatBlock(hexutil.ToHex(data), hexWidth))
	},
}

var hexWidth int

func init() {
	hexCmd.Flags().IntVarP(&hexWidth, "width", "n", hexutil.DefaultBlockWidth, "bytes per line")
}
