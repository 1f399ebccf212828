package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillkom/doc2sys/internal/bootstrap"
	"github.com/kirillkom/doc2sys/internal/config"
	"github.com/kirillkom/doc2sys/internal/observability/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

type rootFlags struct {
	db       string
	storage  string
	catalog  string
	userID   string
	logLevel string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "doc2sys",
		Short: "Extract, classify and structure business documents",
		Long: "doc2sys reads PDFs, scans and office files, classifies them against the configured\n" +
			"document types and extracts structured fields. Commands run locally on a sqlite database.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.db, "db", "doc2sys.db", "sqlite database file")
	pf.StringVar(&flags.storage, "storage", "./data/storage", "directory for stored source files")
	pf.StringVar(&flags.catalog, "catalog", "", "YAML document-type catalog (built-in catalog when empty)")
	pf.StringVar(&flags.userID, "user", "cli", "user whose settings apply")
	pf.StringVar(&flags.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	root.AddCommand(
		newExtractCmd(flags),
		newClassifyCmd(flags),
		newFieldsCmd(flags),
		newProcessCmd(flags),
		newMCPCmd(flags),
	)
	return root
}

// openApp builds the local stack: environment config with sqlite and without NATS.
func openApp(ctx context.Context, cmd *cobra.Command, flags *rootFlags) (*bootstrap.App, error) {
	cfg := config.Load()
	cfg.DBDriver = "sqlite"
	cfg.DatabaseDSN = flags.db
	cfg.StoragePath = flags.storage
	if flags.catalog != "" {
		cfg.CatalogPath = flags.catalog
	}
	logger := logging.NewTextLogger(cmd.ErrOrStderr(), flags.logLevel)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Logger: logger, Service: "cli", Local: true})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return app, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
