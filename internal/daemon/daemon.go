// Package daemon runs the provswitch background service: it opens the
// store, wires sessions and the speed-test engine, serves the local API and
// manages the PID file and config hot-reload.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/allaspectsdev/provswitch/internal/api"
	"github.com/allaspectsdev/provswitch/internal/config"
	"github.com/allaspectsdev/provswitch/internal/metrics"
	"github.com/allaspectsdev/provswitch/internal/store"
	"github.com/allaspectsdev/provswitch/internal/tracing"
	"github.com/allaspectsdev/provswitch/internal/version"
)

const logFilename = "provswitch.log"

// SetupLogging points the global logger at dataDir/provswitch.log and, in
// the foreground, at the console too. The returned file must be closed by
// the caller.
func SetupLogging(dataDir, level string, foreground bool) (io.Closer, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}
	zerolog.SetGlobalLevel(parseLogLevel(level))

	logPath := filepath.Join(dataDir, logFilename)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file %s: %w", logPath, err)
	}

	writers := []io.Writer{logFile}
	if foreground {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"})
	}
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Str("service", "provswitch").Logger()
	return logFile, nil
}

// Run is the service orchestrator. It blocks until a shutdown signal is
// received or the API server fails.
func Run(cfg *config.Config, foreground bool) error {
	dataDir := cfg.Server.DataDir
	logFile, err := SetupLogging(dataDir, cfg.Server.LogLevel, foreground)
	if err != nil {
		return err
	}
	defer logFile.Close()

	log.Info().
		Str("version", version.Version).
		Str("data_dir", dataDir).
		Bool("foreground", foreground).
		Msg("provswitch starting")

	if IsRunning(dataDir) {
		return fmt.Errorf("provswitch is already running (PID file exists at %s)", pidPath(dataDir))
	}

	st, err := store.Open(cfg.Server.DBPath())
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()
	log.Info().Str("db_path", st.Path()).Msg("store opened")

	if err := WritePID(dataDir); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer func() {
		if err := RemovePID(dataDir); err != nil {
			log.Error().Err(err).Msg("failed to remove PID file")
		}
	}()

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.Init(context.Background(), tracing.Options{
			ServiceName: cfg.Tracing.ServiceName,
			Version:     version.Version,
			Exporter:    cfg.Tracing.Exporter,
			Endpoint:    cfg.Tracing.Endpoint,
			SampleRate:  cfg.Tracing.SampleRate,
			Insecure:    cfg.Tracing.Insecure,
		})
		if err != nil {
			log.Warn().Err(err).Msg("tracing disabled")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("tracing shutdown error")
				}
			}()
			log.Info().Str("exporter", cfg.Tracing.Exporter).Msg("tracing enabled")
		}
	}

	collector := metrics.NewCollector()
	svc, err := Build(cfg, st, collector)
	if err != nil {
		return err
	}
	defer svc.Close()

	// Level changes apply immediately; other settings need a restart.
	configFile := config.ConfigFilePath()
	if configFile == "" {
		configFile = filepath.Join(dataDir, config.DefaultConfigFilename)
	}
	if _, statErr := os.Stat(configFile); statErr == nil {
		w, watchErr := config.Watch(configFile)
		if watchErr != nil {
			log.Warn().Err(watchErr).Msg("failed to start config watcher; continuing without hot-reload")
		} else {
			defer w.Close()
			w.OnChange(func(old, newCfg *config.Config) {
				zerolog.SetGlobalLevel(parseLogLevel(newCfg.Server.LogLevel))
				if pending := restartSections(old, newCfg); len(pending) > 0 {
					log.Warn().Strs("sections", pending).Msg("config changes take effect after restart")
				}
			})
			log.Info().Str("file", configFile).Msg("config watcher started")
		}
	}

	pruneCtx, pruneCancel := context.WithCancel(context.Background())
	defer pruneCancel()
	prunerDone := make(chan struct{})
	go func() {
		defer close(prunerDone)
		if cfg.History.Enabled {
			runPruner(pruneCtx, st, cfg.History.RetentionDays)
		}
	}()

	server := api.NewServer(api.Options{
		Store:        st,
		Sessions:     svc.Sessions,
		Catalog:      svc.Catalog,
		Switcher:     svc.Switcher,
		Collector:    collector,
		Addr:         cfg.Server.APIAddr,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
		MaxBodySize:  cfg.Server.MaxBodySize,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()

	log.Info().Str("api_addr", cfg.Server.APIAddr).Msg("provswitch is ready")
	if foreground {
		fmt.Printf("\n  provswitch is running!\n")
		fmt.Printf("  API: http://%s/api\n\n", cfg.Server.APIAddr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("fatal server error")
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("api server shutdown error")
	}

	// Wait for the pruner before the deferred store close.
	pruneCancel()
	<-prunerDone

	log.Info().Msg("provswitch stopped")
	return nil
}

// Stop reads the PID file and sends SIGTERM to the running service.
func Stop() error {
	dataDir := config.Get().Server.DataDir

	pid, err := ReadPID(dataDir)
	if err != nil {
		return fmt.Errorf("provswitch does not appear to be running: %w", err)
	}

	if !isProcessAlive(pid) {
		if rmErr := RemovePID(dataDir); rmErr != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to remove stale PID file: %v\n", rmErr)
		}
		return fmt.Errorf("provswitch is not running (stale PID file removed)")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("sending SIGTERM to process %d: %w", pid, err)
	}
	fmt.Printf("Sent SIGTERM to provswitch (PID %d)\n", pid)

	for i := 0; i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		if !isProcessAlive(pid) {
			return nil
		}
	}
	return nil
}

// Status reports whether the service is running and prints its counters.
func Status(w io.Writer) error {
	cfg := config.Get()
	if !IsRunning(cfg.Server.DataDir) {
		fmt.Fprintln(w, "provswitch is not running")
		return nil
	}
	pid, _ := ReadPID(cfg.Server.DataDir)
	fmt.Fprintf(w, "provswitch is running (PID %d)\n", pid)

	stats, err := FetchStats(&http.Client{Timeout: 3 * time.Second}, cfg.Server.APIAddr)
	if err != nil {
		fmt.Fprintln(w, "  (api unreachable)")
		return nil
	}
	PrintStats(w, stats)
	return nil
}

// FetchStats reads /api/stats from the service listening on addr.
func FetchStats(client *http.Client, addr string) (*metrics.Stats, error) {
	resp, err := client.Get("http://" + addr + "/api/stats")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stats: unexpected status %d", resp.StatusCode)
	}
	var stats metrics.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return &stats, nil
}

// PrintStats writes a human-readable summary of stats.
func PrintStats(w io.Writer, stats *metrics.Stats) {
	fmt.Fprintf(w, "\n  Uptime:          %s\n", stats.Uptime)
	fmt.Fprintf(w, "  Open sessions:   %d\n", stats.OpenSessions)
	fmt.Fprintf(w, "  Probe rounds:    %d (%d active)\n", stats.ProbeRounds, stats.ActiveRounds)
	fmt.Fprintf(w, "  Probes:          %d ok / %d failed\n", stats.ProbesOK, stats.ProbesFailed)
	fmt.Fprintf(w, "  Auto-selections: %d\n", stats.AutoSelections)
	fmt.Fprintf(w, "  Commits:         %d ok / %d failed\n", stats.CommitsOK, stats.CommitsFailed)
}

// runPruner prunes probe history once at start and then hourly.
func runPruner(ctx context.Context, st *store.Store, retentionDays int) {
	if retentionDays <= 0 {
		return
	}

	prune := func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("history pruner: recovered from panic")
			}
		}()
		n, err := st.Prune(retentionDays)
		if err != nil {
			log.Error().Err(err).Msg("history pruning failed")
		} else if n > 0 {
			log.Info().Int64("rows", n).Int("retention_days", retentionDays).Msg("pruned probe history")
		}
	}

	prune()
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

// parseLogLevel converts a string log level to a zerolog.Level.
func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// restartSections returns the changed sections that are not hot-applied.
// Only server.log_level takes effect while running.
func restartSections(old, cfg *config.Config) []string {
	var out []string
	for _, name := range config.Changed(old, cfg) {
		if name == "server" {
			a, b := old.Server, cfg.Server
			a.LogLevel, b.LogLevel = "", ""
			if a == b {
				continue
			}
		}
		out = append(out, name)
	}
	return out
}
