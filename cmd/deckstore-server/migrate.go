package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opendeck/deckstore/deckapi"
	"github.com/opendeck/deckstore/internal/dcontext"
	"github.com/opendeck/deckstore/legacystore"
)

var deleteLegacy bool

// MigrateCmd walks every legacy deck blob and eagerly converts it to a
// manifest through the same facade SaveDeck uses on a normal write,
// instead of waiting for each deck's next save to trigger the conversion.
// It is non-destructive by default: legacy blobs are left in place as a
// read fallback until --delete-legacy asks for them to be removed once
// their manifest has landed successfully.
var MigrateCmd = &cobra.Command{
	Use:   "migrate <config>",
	Short: "`migrate` converts legacy decks to the manifest format",
	Long:  "`migrate` converts legacy decks to the manifest format",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := resolveConfiguration(args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
			// nolint:errcheck
			cmd.Usage()
			os.Exit(usageExitCode(err))
		}

		ctx := configureLogging(context.Background(), cfg)

		api, err := buildAPI(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to build application: %v\n", err)
			os.Exit(1)
		}

		converted, failed, err := runMigration(ctx, api, deleteLegacy)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
			os.Exit(1)
		}

		dcontext.GetLogger(ctx).Infof("migration complete: %d converted, %d failed", converted, failed)
		if failed > 0 {
			os.Exit(1)
		}
	},
}

// runMigration performs the actual walk. A deck that fails to convert
// (e.g. a cyclic group) is logged and counted, not fatal to the run.
func runMigration(ctx context.Context, api *deckapi.API, deleteSource bool) (converted, failed int, err error) {
	if api.Legacy == nil {
		return 0, 0, nil
	}

	err = api.Docs.ScanMeta(ctx, api.Legacy.DataListPattern(), func(key string) error {
		id := legacystore.IDFromDataKey(key)
		if id == "" {
			return nil
		}

		legacy, ok, getErr := api.Legacy.Get(ctx, id)
		if getErr != nil {
			dcontext.GetLogger(ctx).Errorf("migrate: skipping %s: %v", id, getErr)
			failed++
			return nil
		}
		if !ok {
			return nil
		}

		if _, saveErr := api.SaveDeck(ctx, legacy, deckapi.SaveOptions{Legacy: true}); saveErr != nil {
			dcontext.GetLogger(ctx).Errorf("migrate: failed to convert %s: %v", id, saveErr)
			failed++
			return nil
		}
		converted++

		if deleteSource {
			if _, delErr := api.Legacy.Delete(ctx, id); delErr != nil {
				dcontext.GetLogger(ctx).Errorf("migrate: converted %s but failed to delete legacy blob: %v", id, delErr)
			}
		}
		return nil
	})
	return converted, failed, err
}
