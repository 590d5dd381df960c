package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/txnfsal/txnfsal/internal/cliout"
	"github.com/txnfsal/txnfsal/pkg/kvstore"
	"github.com/txnfsal/txnfsal/pkg/txnlog"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <kv-path>",
	Short: "Dump identity-map bijection stats and outstanding transaction-log records",
	Long: `inspect opens the KV store at kv-path (read-write: opening it inserts
any missing namespace anchors; no record is changed) and reports how many
UUID<->host-handle pairs each index holds (mismatched counts indicate a
broken bijection) plus every transaction-log record still awaiting crash
recovery.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	kvPath := args[0]

	store, err := kvstore.Open(kvPath)
	if err != nil {
		return fmt.Errorf("open kv store: %w", err)
	}
	defer store.Close()

	uuidCount := 0
	if err := store.ScanPrefix([]byte(kvstore.PrefixUUIDIndex), func(key, value []byte) error {
		uuidCount++
		return nil
	}); err != nil {
		return fmt.Errorf("scan uuid index: %w", err)
	}

	handleCount := 0
	if err := store.ScanPrefix([]byte(kvstore.PrefixHandleIndex), func(key, value []byte) error {
		handleCount++
		return nil
	}); err != nil {
		return fmt.Errorf("scan handle index: %w", err)
	}

	out := cmd.OutOrStdout()
	cliout.KeyValue(out, [][2]string{
		{"kv_path", kvPath},
		{"uuid_index_entries", fmt.Sprintf("%d", uuidCount)},
		{"handle_index_entries", fmt.Sprintf("%d", handleCount)},
		{"bijective", fmt.Sprintf("%t", uuidCount == handleCount)},
	})

	log := txnlog.Open(store)
	records, err := log.LoadAll()
	if err != nil {
		return fmt.Errorf("load transaction log: %w", err)
	}

	fmt.Fprintln(out)
	table := cliout.NewTable("txn_id", "compound_type", "created", "unlinks", "symlinks", "renames")
	for _, r := range records {
		table.AddRow(
			fmt.Sprintf("%d", r.TxnID),
			r.CompoundType.String(),
			fmt.Sprintf("%d", len(r.CreatedObjects)),
			fmt.Sprintf("%d", len(r.Unlinks)),
			fmt.Sprintf("%d", len(r.Symlinks)),
			fmt.Sprintf("%d", len(r.Renames)),
		)
	}
	table.Print(out)

	if inspectVerbose {
		for _, r := range records {
			data, err := json.MarshalIndent(r, "", "  ")
			if err != nil {
				continue
			}
			fmt.Fprintln(out, string(data))
		}
	}

	return nil
}

var inspectVerbose bool

func init() {
	inspectCmd.Flags().BoolVarP(&inspectVerbose, "verbose", "v", false, "also print each record's full JSON body")
}
