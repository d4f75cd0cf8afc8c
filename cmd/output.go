package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"firestige.xyz/wirelab/pkg/schema"
)

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printFields writes decoded fields as an aligned table. Children are
// indented under their parent.
func printFields(w io.Writer, fields []schema.DecodedField) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OFFSET\tLEN\tNAME\tRAW\tVALUE\tMEANING")
	writeRows(tw, fields, 0)
	return tw.Flush()
}

func writeRows(w io.Writer, fields []schema.DecodedField, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, f := range fields {
		value := f.DisplayValue
		if f.FormattedValue != "" && f.FormattedValue != f.DisplayValue {
			value = f.FormattedValue
		}
		meaning := f.Meaning
		if f.Failed() {
			meaning = "ERROR: " + string(f.Error)
		}
		fmt.Fprintf(w, "%d\t%d\t%s%s\t%s\t%s\t%s\n",
			f.Offset, f.Length, indent, f.Name, f.RawHex, value, meaning)
		writeRows(w, f.Children, depth+1)
	}
}
