package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/txnfsal/txnfsal/internal/cliout"
	"github.com/txnfsal/txnfsal/internal/localfs"
	"github.com/txnfsal/txnfsal/pkg/backupstore"
	"github.com/txnfsal/txnfsal/pkg/cleanup"
	"github.com/txnfsal/txnfsal/pkg/coordinator"
	"github.com/txnfsal/txnfsal/pkg/identitymap"
	"github.com/txnfsal/txnfsal/pkg/kvstore"
	"github.com/txnfsal/txnfsal/pkg/lockmgr"
	"github.com/txnfsal/txnfsal/pkg/txnlog"
)

var recoverCmd = &cobra.Command{
	Use:   "recover <kv-path> <export-root>",
	Short: "Replay every surviving transaction-log record against an export root",
	Long: `recover opens the KV store at kv-path and replays every surviving
transaction-log record against export-root, undoing whatever partial work a
compound left behind before an unclean shutdown. It is meant to run once,
before the FSAL process serving that export restarts.`,
	Args: cobra.ExactArgs(2),
	RunE: runRecover,
}

func runRecover(cmd *cobra.Command, args []string) error {
	kvPath, exportRoot := args[0], args[1]

	store, err := kvstore.Open(kvPath)
	if err != nil {
		return fmt.Errorf("open kv store: %w", err)
	}
	defer store.Close()

	idmap, err := identitymap.Open(store)
	if err != nil {
		return fmt.Errorf("open identity map: %w", err)
	}
	log := txnlog.Open(store)
	backups := backupstore.Open(exportRoot)
	locks := lockmgr.New()
	worker := cleanup.New(backups, cleanup.DefaultCapacity)

	export, err := localfs.Open(exportRoot)
	if err != nil {
		return fmt.Errorf("open export root: %w", err)
	}

	co := coordinator.New(idmap, log, backups, locks, worker)

	recovered, err := co.Recover(context.Background(), export)
	if err != nil {
		return fmt.Errorf("recover: %w", err)
	}

	cliout.KeyValue(cmd.OutOrStdout(), [][2]string{
		{"kv_path", kvPath},
		{"export_root", exportRoot},
		{"records_recovered", fmt.Sprintf("%d", recovered)},
	})
	return nil
}
