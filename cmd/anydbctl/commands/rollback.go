package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sharedcode/anydb/internal/wireformat"
	"github.com/sharedcode/anydb/vec"
)

var rollbackBefore uint64

var rollbackCmd = &cobra.Command{
	Use:   "rollback <vector>",
	Short: "Roll back a vector's most recent stamped change, or keep rolling back until its stamp is below --before",
	Args:  cobra.ExactArgs(1),
	RunE:  runRollback,
}

func init() {
	rollbackCmd.Flags().Uint64Var(&rollbackBefore, "before", 0, "roll back repeatedly until the stamp is below this value")
}

func runRollback(cmd *cobra.Command, args []string) error {
	name := args[0]
	db, _, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	h, ok := db.Regions().Lookup(name + ".header")
	if !ok {
		return fmt.Errorf("no vector named %q", name)
	}
	raw, err := db.Regions().Read(h, 0, h.Length())
	if err != nil {
		return err
	}
	hdr, err := wireformat.DecodeVectorHeader(raw)
	if err != nil {
		return err
	}
	if hdr.ElementWidth != 8 {
		return fmt.Errorf("anydbctl rollback only supports 8-byte elements (vector %q has width %d)", name, hdr.ElementWidth)
	}

	v, err := vec.Import[uint64](db, name, hdr.Version, hdr.CodecID, vec.Uint64Marshaler{})
	if err != nil {
		return err
	}

	if rollbackBefore > 0 {
		if err := v.RollbackBefore(rollbackBefore); err != nil {
			return err
		}
	} else if err := v.Rollback(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: now at stamp=%d len=%d\n", name, v.Stamp(), v.Len())
	return nil
}
