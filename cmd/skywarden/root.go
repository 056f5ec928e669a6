package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zypherlabs/skywarden/internal/audit"
	"github.com/zypherlabs/skywarden/internal/config"
	"github.com/zypherlabs/skywarden/internal/crypto"
	"github.com/zypherlabs/skywarden/internal/identity"
	"github.com/zypherlabs/skywarden/internal/ids"
	"github.com/zypherlabs/skywarden/internal/logging"
	"github.com/zypherlabs/skywarden/internal/store"
)

var (
	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "skywarden",
	Short: "Autonomous drone mission control",
	Long: `skywarden runs autonomous surveillance patrols: identity
provisioning, preflight checks, waypoint missions with detection
alerts, and a tamper-evident audit trail.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		lc := logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}
		if v := os.Getenv("SKYWARDEN_LOG_LEVEL"); v != "" {
			lc.Level = v
		}
		if v := os.Getenv("SKYWARDEN_LOG_FORMAT"); v != "" {
			lc.Format = v
		}
		logger, err = logging.New(lc)
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logging.Sync(logger)
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles the long-lived dependencies most subcommands need.
type app struct {
	ids      *ids.Generator
	identity *identity.DroneIdentity
	engine   *crypto.Engine
	store    *store.Store
	auditor  *audit.Logger
}

// newApp opens identity, store, and the audit logger. The identity
// must already be provisioned.
func newApp() (*app, error) {
	gen := ids.NewGenerator()
	id, err := identity.Open(cfg.Drone.IdentityDir, gen)
	if err != nil {
		return nil, err
	}
	droneID, err := id.DroneID()
	if err != nil {
		return nil, fmt.Errorf("drone is not provisioned, run 'skywarden provision' first: %w", err)
	}
	engine := crypto.NewEngine(id)
	st, err := store.Open(cfg.Data.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	auditor := audit.NewLogger(st, engine, droneID, gen, logger)
	return &app{
		ids:      gen,
		identity: id,
		engine:   engine,
		store:    st,
		auditor:  auditor,
	}, nil
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
	}
}

func (a *app) droneID() string {
	id, _ := a.identity.DroneID()
	return id
}
