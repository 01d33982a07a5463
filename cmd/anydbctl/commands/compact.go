package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Punch every committed hole in the data file to reclaim disk space",
	RunE:  runCompact,
}

func runCompact(cmd *cobra.Command, args []string) error {
	db, _, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	reclaimed, err := db.Compact()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "reclaimed %d bytes\n", reclaimed)
	return nil
}
