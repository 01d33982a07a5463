package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sharedcode/anydb/internal/wireformat"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the region table and vector headers",
	RunE:  runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	db, _, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	names := db.Regions().Names()
	sort.Strings(names)

	headers := make(map[string]string)
	for _, n := range names {
		if strings.HasSuffix(n, ".header") {
			headers[strings.TrimSuffix(n, ".header")] = n
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), "REGIONS")
	for _, n := range names {
		h, ok := db.Regions().Lookup(n)
		if !ok {
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  %-32s len=%-10d cap=%d\n", n, h.Length(), h.Capacity())
	}

	if len(headers) == 0 {
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), "\nVECTORS")
	vecNames := make([]string, 0, len(headers))
	for base := range headers {
		vecNames = append(vecNames, base)
	}
	sort.Strings(vecNames)
	for _, base := range vecNames {
		h, ok := db.Regions().Lookup(headers[base])
		if !ok {
			continue
		}
		raw, err := db.Regions().Read(h, 0, h.Length())
		if err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "  %-16s <unreadable: %v>\n", base, err)
			continue
		}
		hdr, err := wireformat.DecodeVectorHeader(raw)
		if err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "  %-16s <corrupt: %v>\n", base, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  %-16s version=%d codec=%d width=%d block_size=%d len=%d stamp=%d\n",
			base, hdr.Version, hdr.CodecID, hdr.ElementWidth, hdr.BlockSize, hdr.PushedLen, hdr.Stamp)
	}
	return nil
}
