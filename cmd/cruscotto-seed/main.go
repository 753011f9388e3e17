package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cruscotto/internal/amqp"
	"cruscotto/internal/cli"
	"cruscotto/internal/config"
	"cruscotto/internal/log"
)

func main() {
	cli.LoadEnvFile()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cruscotto-seed",
		Short: "Import transaction records into the SQLite store",
		Long: `Import a JSON array of transaction records into the SQLite database
served by the sqlite backend. Records are upserted by id, so re-running an
import is safe.

When AMQP_URL is set a "transactions changed" notification is published
so running dashboards drop their cached responses.

Examples:
  cruscotto-seed --file ./data/transactions.json
  cruscotto-seed -f export.json --db /var/lib/cruscotto/cruscotto.db --notify=false`,
		SilenceUsage: true,
		RunE:         runSeed,
	}

	cmd.Flags().StringP("file", "f", "", "JSON file with transaction records (required)")
	cmd.Flags().String("db", "", "SQLite database path (defaults to SQLITE_DB_PATH)")
	cmd.Flags().Bool("notify", true, "publish a change notification when AMQP_URL is set")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat, log.ComponentSeed)

	file, _ := cmd.Flags().GetString("file")
	dbPath, _ := cmd.Flags().GetString("db")
	notify, _ := cmd.Flags().GetBool("notify")
	if dbPath == "" {
		dbPath = cfg.SQLiteDBPath
	}

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	repo := cli.InitSQLite(logger.WithComponent(log.ComponentStorage).Slog(), dbPath)
	defer repo.Close()

	var publisher Publisher
	if notify && cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger.WithComponent(log.ComponentAMQP).Slog())
		if err != nil {
			// The import still succeeds; caches expire on their own.
			logger.Warn("AMQP unavailable, skipping change notification", log.FieldError, err)
		} else {
			defer client.Close()
			publisher = client
		}
	}

	summary, err := Import(ctx, file, repo, publisher, logger)
	if err != nil {
		logger.Error("Import failed", log.FieldError, err, "file", file)
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "imported %d of %d records into %s\n", summary.Stored, summary.Read, dbPath)
	return nil
}
