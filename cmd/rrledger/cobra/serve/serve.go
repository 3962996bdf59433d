/*
Copyright the Reciprocal Reviews contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package serve

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/reciprocalreviews/ledger/ledger/config"
	"github.com/reciprocalreviews/ledger/ledger/db/driver"
	"github.com/reciprocalreviews/ledger/ledger/db/sql/postgres"
	"github.com/reciprocalreviews/ledger/ledger/db/sql/sqlite"
	"github.com/reciprocalreviews/ledger/ledger/engine"
	"github.com/reciprocalreviews/ledger/ledger/identity"
	"github.com/reciprocalreviews/ledger/ledger/logging"
	"github.com/reciprocalreviews/ledger/ledger/metrics"
	"github.com/reciprocalreviews/ledger/ledger/notify"
	"github.com/reciprocalreviews/ledger/ledger/settlement"
	"github.com/reciprocalreviews/ledger/ledger/web"
	"github.com/spf13/cobra"
)

var logger = logging.MustGetLogger("rrledger.serve")

// Cmd returns the Cobra Command for the ledger server.
func Cmd() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ledger server.",
		Long:  "Run the HTTP ledger server against the configured database.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return errors.Errorf("trailing args detected")
			}
			cmd.SilenceUsage = true
			if configFile != "" {
				if err := os.Setenv(config.ConfigFileEnv, configFile); err != nil {
					return errors.Wrap(err, "failed setting config path")
				}
			}
			return serve()
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "path to the configuration file")
	return cmd
}

func serve() error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed loading configuration")
	}

	stores, err := openStores(&cfg.DB)
	if err != nil {
		return err
	}

	resolver, err := identity.NewResolver(stores.Scholars)
	if err != nil {
		return errors.Wrap(err, "failed building identity resolver")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	m := metrics.New(registry)

	dispatcher := notify.NewStoreDispatcher(stores.Emails, m)
	eng := engine.New(stores, resolver, dispatcher, m, engine.Config{
		CancelPolicy: engine.CancelPolicy(cfg.Ledger.CancelPolicy),
	})
	svc := settlement.New(stores, eng, resolver, dispatcher)

	server := web.NewServer(eng, svc, stores, registry)
	logger.Infof("ledger server starting with %s backend", cfg.DB.Driver)
	return server.Run(cfg.Server.Address)
}

func openStores(cfg *config.DB) (*driver.Stores, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlite.Open(sqlite.Opts{
			DataSource:   cfg.DataSource,
			TablePrefix:  cfg.TablePrefix,
			CreateSchema: cfg.CreateSchema,
			MaxOpenConns: cfg.MaxOpenConns,
		})
	case "postgres":
		return postgres.Open(postgres.Opts{
			DataSource:   cfg.DataSource,
			TablePrefix:  cfg.TablePrefix,
			CreateSchema: cfg.CreateSchema,
			MaxOpenConns: cfg.MaxOpenConns,
			MaxIdleConns: cfg.MaxIdleConns,
			MaxIdleTime:  time.Duration(cfg.MaxIdleTimeSeconds) * time.Second,
		})
	default:
		return nil, errors.Errorf("unknown db driver [%s], expected sqlite or postgres", cfg.Driver)
	}
}
