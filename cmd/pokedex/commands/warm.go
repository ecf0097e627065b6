package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pokedexos/dexcache/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Pre-fetch a range of species into the cache",
	Long: `Fetches and stores every id in the range in ascending order.
Failed items are skipped and reported. Ctrl-C stops after the current item.`,
	RunE: runWarm,
}

func init() {
	rootCmd.AddCommand(warmCmd)
	warmCmd.Flags().Int("from", 1, "First id to fetch")
	warmCmd.Flags().Int("to", 151, "Last id to fetch (inclusive)")
	warmCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address while warming")

	viper.BindPFlag("warm-from", warmCmd.Flags().Lookup("from"))
	viper.BindPFlag("warm-to", warmCmd.Flags().Lookup("to"))
	viper.BindPFlag("metrics-addr", warmCmd.Flags().Lookup("metrics-addr"))
}

func runWarm(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, a.registry)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	if !a.service.ProbeConnectivity(ctx) {
		return fmt.Errorf("remote API %s is unreachable; nothing to warm", cfg.APIBaseURL)
	}

	job := a.service.StartWarm(ctx, cfg.WarmFrom, cfg.WarmTo)
	for p := range job.Progress() {
		mark := "ok"
		if p.Err != nil {
			mark = "failed: " + p.Err.Error()
		}
		fmt.Printf("[%d/%d] #%d %s\n", p.Done, p.Total, p.ID, mark)
	}

	report, err := job.Wait()
	if err != nil {
		return errors.Wrap(err, "warm failed")
	}

	fmt.Printf("\nAttempted %d/%d, stored %d/%d\n", report.Attempted, report.Total(), report.Succeeded, report.Total())
	if len(report.Failed) > 0 {
		fmt.Printf("Failed ids: %v\n", report.Failed)
	}
	if report.Interrupted {
		fmt.Println("Interrupted before the end of the range")
	}
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics_server_start", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics_server_failed", "addr", addr, "error", err)
		}
	}()
	return srv
}
