package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/pokedexos/dexcache/pkg/errors"
	"github.com/pokedexos/dexcache/pkg/lookup"
	"github.com/pokedexos/dexcache/pkg/record"
	"github.com/spf13/cobra"
)

var (
	lookupNext bool
	lookupPrev bool
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <id|name>",
	Short: "Resolve a species from the cache, fetching it if missing",
	Long: `Resolves a species from the cache, fetching it if missing.
With --next or --prev, shows the closest cached entry after or before it instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runLookup,
}

func init() {
	rootCmd.AddCommand(lookupCmd)
	lookupCmd.Flags().BoolVar(&lookupNext, "next", false, "Show the next cached entry")
	lookupCmd.Flags().BoolVar(&lookupPrev, "prev", false, "Show the previous cached entry")
	lookupCmd.MarkFlagsMutuallyExclusive("next", "prev")
}

func runLookup(cmd *cobra.Command, args []string) error {
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

	if lookupNext || lookupPrev {
		return runNeighbor(ctx, a, args[0], lookupNext)
	}

	res, err := a.service.ResolveOnDemand(ctx, args[0])
	if err != nil {
		return errors.Wrap(err, "lookup failed")
	}

	switch res.Status {
	case lookup.StatusCacheHit, lookup.StatusFetched:
		printRecord(res.Record, res.Status)
		descs, err := a.store.Repository().Descriptions(ctx, res.Record.ID)
		if err != nil {
			return errors.Wrap(err, "descriptions failed")
		}
		for _, d := range descs {
			fmt.Printf("  [%s] %s\n", d.Language, d.Text)
		}
	case lookup.StatusRemoteUnavailable:
		fmt.Printf("%q is not cached and the remote API is unreachable (offline)\n", args[0])
	case lookup.StatusNotFound:
		fmt.Printf("%q does not exist\n", args[0])
	case lookup.StatusRemoteFetchFailed:
		fmt.Printf("%q is not cached and fetching it failed: %v\n", args[0], res.Err)
	}

	return nil
}

// runNeighbor steps through cached entries only; it never fetches.
func runNeighbor(ctx context.Context, a *app, raw string, next bool) error {
	rec, err := a.store.NeighborOf(ctx, record.ParseIdentifier(raw), next)
	if err != nil {
		return errors.Wrap(err, "neighbor lookup failed")
	}
	if rec == nil {
		direction := "after"
		if !next {
			direction = "before"
		}
		fmt.Printf("No cached entry %s %q\n", direction, raw)
		return nil
	}
	printRecord(rec, lookup.StatusCacheHit)
	return nil
}

func printRecord(rec *record.Record, status lookup.Status) {
	asset := rec.AssetPath
	if !rec.HasAsset() {
		asset = "-"
	}
	fmt.Printf("#%03d %s (%s)\n", rec.ID, rec.Name, status)
	fmt.Printf("  types:   %s\n", strings.Join(rec.Categories, ", "))
	fmt.Printf("  height:  %.1f m\n", rec.Height)
	fmt.Printf("  weight:  %.1f kg\n", rec.Weight)
	fmt.Printf("  sprite:  %s\n", asset)
	fmt.Printf("  updated: %s\n", rec.LastUpdated.Format("2006-01-02 15:04:05"))
}
