package commands

import (
	"context"
	"fmt"

	"github.com/pokedexos/dexcache/pkg/errors"
	"github.com/spf13/cobra"
)

var clearYes bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached record and sprite",
	RunE:  runClear,
}

func init() {
	rootCmd.AddCommand(clearCmd)
	clearCmd.Flags().BoolVar(&clearYes, "yes", false, "Confirm deletion")
}

func runClear(cmd *cobra.Command, args []string) error {
	if !clearYes {
		return fmt.Errorf("refusing to clear the cache without --yes")
	}

	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	count, err := a.store.Count(ctx)
	if err != nil {
		return errors.Wrap(err, "count failed")
	}

	if err := a.store.Clear(ctx); err != nil {
		return errors.Wrap(err, "clear failed")
	}
	a.remote.Forget()

	fmt.Printf("Cleared %d cached species\n", count)
	return nil
}
