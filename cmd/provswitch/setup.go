package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/allaspectsdev/provswitch/internal/config"
	"github.com/allaspectsdev/provswitch/internal/daemon"
	"github.com/allaspectsdev/provswitch/internal/metrics"
	"github.com/allaspectsdev/provswitch/internal/store"
)

func loadConfig(a cliArgs) *config.Config {
	cfg, err := config.Load(a.get("config"))
	if err != nil {
		fatalf("error loading config: %v", err)
	}
	return cfg
}

// local is an in-process service stack for one CLI command.
type local struct {
	cfg *config.Config
	st  *store.Store
	svc *daemon.Services
}

// openLocal opens the store and wires the services. Only warnings and
// errors are logged, to stderr.
func openLocal(a cliArgs) *local {
	cfg := loadConfig(a)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	if err := os.MkdirAll(cfg.Server.DataDir, 0o755); err != nil {
		fatalf("error creating data directory: %v", err)
	}
	st, err := store.Open(cfg.Server.DBPath())
	if err != nil {
		fatalf("error opening store: %v", err)
	}
	svc, err := daemon.Build(cfg, st, metrics.NewCollector())
	if err != nil {
		st.Close()
		fatalf("error: %v", err)
	}
	return &local{cfg: cfg, st: st, svc: svc}
}

func (l *local) Close() {
	l.svc.Close()
	l.st.Close()
}

func cmdServe(args []string) {
	a := parseArgs(args)
	cfg := loadConfig(a)
	foreground := a.has("foreground") || a.has("f")
	if err := daemon.Run(cfg, foreground); err != nil {
		fatalf("error: %v", err)
	}
}

func cmdStop() {
	if _, err := config.Load(""); err != nil {
		fatalf("error loading config: %v", err)
	}
	if err := daemon.Stop(); err != nil {
		fatalf("error stopping service: %v", err)
	}
	fmt.Println("provswitch stopped")
}

func cmdStatus() {
	if _, err := config.Load(""); err != nil {
		fatalf("error loading config: %v", err)
	}
	if err := daemon.Status(os.Stdout); err != nil {
		fatalf("%v", err)
	}
}

func cmdInitConfig() {
	if err := config.InitConfig(); err != nil {
		fatalf("error generating config: %v", err)
	}
}

func cmdConfigExport(args []string) {
	a := parseArgs(args)
	path := a.arg(0)
	if path == "" {
		path = "provswitch-export.toml"
	}
	loadConfig(a)
	if err := config.ExportConfig(path); err != nil {
		fatalf("error exporting config: %v", err)
	}
	fmt.Printf("Config exported to %s\n", path)
}

func cmdInstallService() {
	cfg, err := config.Load("")
	if err != nil {
		fatalf("error loading config: %v", err)
	}
	if err := daemon.InstallService(cfg.Server.DataDir); err != nil {
		fatalf("error installing service: %v", err)
	}
	fmt.Println("Service installed successfully")
}

func cmdUninstallService() {
	if err := daemon.UninstallService(); err != nil {
		fatalf("error removing service: %v", err)
	}
}

var stdout io.Writer = os.Stdout
