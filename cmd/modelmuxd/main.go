// Command modelmuxd runs the modelmux admission daemon: it loads the alias
// configuration, discovers host resources, and serves the scheduling HTTP
// API that backs the modelmux CLI and any proxying client library.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/modelmux/modelmux/pkg/alias"
	"github.com/modelmux/modelmux/pkg/config"
	"github.com/modelmux/modelmux/pkg/inference"
	"github.com/modelmux/modelmux/pkg/inference/backends/llamacpp"
	"github.com/modelmux/modelmux/pkg/inference/backends/ollama"
	"github.com/modelmux/modelmux/pkg/logging"
	"github.com/modelmux/modelmux/pkg/metrics"
	"github.com/modelmux/modelmux/pkg/resourcemodel"
	"github.com/modelmux/modelmux/pkg/scheduling"
)

var (
	verbose bool
	logJSON bool
	addr    string
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modelmuxd",
		Short: "Admission daemon for the modelmux inference multiplexer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), buildLogger())
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	cmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "output logs in JSON format")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "address the admission API listens on")
	return cmd
}

func buildLogger() logging.Logger {
	l := logrus.New()
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	}
	if logJSON {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	return logging.NewLogrusAdapter(l)
}

func run(ctx context.Context, log logging.Logger) error {
	globalPath, err := config.GlobalConfigPath()
	if err != nil {
		return fmt.Errorf("resolving global config path: %w", err)
	}
	global, err := config.LoadGlobal(globalPath)
	if err != nil {
		return fmt.Errorf("loading global config: %w", err)
	}

	projectPath, err := config.ProjectConfigPath()
	if err != nil {
		return fmt.Errorf("resolving project config path: %w", err)
	}
	project, err := config.LoadProject(projectPath)
	if err != nil {
		return fmt.Errorf("loading project config: %w", err)
	}

	globalAliases, err := global.Aliases()
	if err != nil {
		return fmt.Errorf("parsing global aliases: %w", err)
	}
	projectAliases, err := project.Aliases()
	if err != nil {
		return fmt.Errorf("parsing project aliases: %w", err)
	}

	registry := alias.NewRegistry()
	if err := registry.LoadAll(globalAliases, projectAliases); err != nil {
		return fmt.Errorf("loading alias registry: %w", err)
	}
	log.Infof("loaded %d aliases", len(registry.List()))

	cachePath, err := config.ResourceCachePath()
	if err != nil {
		return fmt.Errorf("resolving resource cache path: %w", err)
	}
	cache := resourcemodel.NewCache(cachePath, log.WithField("component", "resourcemodel"))
	measurer := resourcemodel.DefaultMeasurer{Log: log.WithField("component", "resourcemodel")}

	totalRAM := resourcemodel.TotalRAMMB(log)
	totalVRAM := resourcemodel.TotalVRAMMB(log)
	log.WithField("ram_mb", totalRAM).WithField("vram_mb", totalVRAM).Info("discovered host resources")

	reg := prometheus.NewRegistry()
	schedulerMetrics := metrics.NewScheduler(reg)

	factories := map[alias.BackendKind]scheduling.BackendFactory{
		alias.LlamaCpp: func(a alias.Alias, port int) (inference.Backend, error) {
			return llamacpp.New(a, port, global.LlamaCppModelDir, log.WithField("backend", "llamacpp")), nil
		},
		alias.Ollama: func(a alias.Alias, port int) (inference.Backend, error) {
			return ollama.New(a, port, log.WithField("backend", "ollama"))
		},
	}

	manager := scheduling.NewManager(log, cache, measurer, factories, totalRAM, totalVRAM, scheduling.WithMetrics(schedulerMetrics))

	handler := scheduling.NewHTTPHandler(registry, manager, log.WithField("component", "http"))
	mux := http.NewServeMux()
	mux.Handle("/", otelhttp.NewHandler(handler, "modelmux.admission"))
	mux.Handle("/metrics", metrics.Handler(reg))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	// workers tracks the HTTP listener goroutine and the shutdown-watcher
	// goroutine together, the same errgroup.WithContext shape the upstream
	// scheduler's own run loop uses to supervise its worker goroutines.
	workers, workerCtx := errgroup.WithContext(ctx)

	workers.Go(func() error {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	workers.Go(func() error {
		<-workerCtx.Done()
		log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), scheduling.DefaultShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("error shutting down HTTP server")
		}
		if err := manager.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("error stopping running servers")
		}
		return nil
	})

	log.Infof("modelmuxd listening on %s", addr)
	return workers.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
