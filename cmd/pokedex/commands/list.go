package commands

import (
	"context"
	"fmt"

	"github.com/pokedexos/dexcache/pkg/errors"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all cached species",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
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

	entries, err := a.store.ListAll(ctx)
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	if len(entries) == 0 {
		fmt.Println("No species cached")
		return nil
	}

	fmt.Printf("%-6s %-30s\n", "ID", "NAME")
	fmt.Println("------------------------------------")

	for _, e := range entries {
		fmt.Printf("%-6d %-30s\n", e.ID, e.Name)
	}

	fmt.Printf("\n%d cached\n", len(entries))
	return nil
}
