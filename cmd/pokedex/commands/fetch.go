package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pokedexos/dexcache/pkg/errors"
	appfsm "github.com/pokedexos/dexcache/pkg/fsm"
	"github.com/pokedexos/dexcache/pkg/record"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/superfly/fsm"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <id|name>",
	Short: "Fetch and store one species through the durable workflow",
	Long: `Runs check-cache, fetch and persist as a resumable state machine.
Transport failures are retried up to fsm-max-retries times.`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().Int("max-retries", 5, "Retries per state before the run is aborted")
	viper.BindPFlag("fsm-max-retries", fetchCmd.Flags().Lookup("max-retries"))
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	id := record.ParseIdentifier(args[0])
	if id.IsZero() {
		return fmt.Errorf("invalid identifier %q", args[0])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Ensure all necessary directories exist
	if err := ensureDirectories(cfg.DBPath, cfg.FSMDBPath); err != nil {
		return err
	}

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	manager, err := fsm.New(fsm.Config{DBPath: cfg.FSMDBPath})
	if err != nil {
		return errors.Wrap(err, "FSM manager failed")
	}
	defer manager.Shutdown(10 * time.Second)

	machine := appfsm.NewMachine(a.store, a.remote, cfg.FSMMaxRetries)
	start, _, err := machine.Register(ctx, manager)
	if err != nil {
		return errors.Wrap(err, "FSM register failed")
	}

	req := &appfsm.FetchRequest{Identifier: id.String()}
	resp := &appfsm.FetchResponse{}

	version, err := start(ctx, id.String(), fsm.NewRequest(req, resp))
	if err != nil {
		return errors.Wrap(err, "FSM start failed")
	}

	slog.Info("fsm_started", "identifier", id.String(), "version", version)

	if err := manager.Wait(ctx, version); err != nil {
		if resp.Status != "" {
			fmt.Printf("%s: %s\n", id, resp.Status)
		}
		return errors.Wrap(err, "FSM execution failed")
	}

	slog.Info("fetch_completed", "status", resp.Status, "record_id", resp.RecordID, "sprite", resp.AssetPath)
	fmt.Printf("#%03d %s %s\n", resp.RecordID, resp.Name, resp.Status)

	return nil
}
