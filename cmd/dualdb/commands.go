package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/tigerroll/surfin-dualdb/internal/app"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/surfin-dualdb/pkg/batch/core/config"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/dbctx"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/logger"
)

const stopTimeout = 30 * time.Second

// NewRootCommand builds the dualdb command tree.
func NewRootCommand(envFilePath string, embeddedConfig config.EmbeddedConfig, stdout io.Writer) *cobra.Command {
	rc := &cobra.Command{
		Use:   "dualdb",
		Short: "Imports CSV files into one of two databases selected per request.",
		Long: `
dualdb reads ';'-separated CSV files (name;age;email), upper-cases the names and
writes the records into the Primary (DB_A) or Secondary (DB_B) database. Connection
pools are created for each import and destroyed when it ends.
`,
		SilenceUsage: true,
	}

	rc.AddCommand(newServeCommand(envFilePath, embeddedConfig))
	rc.AddCommand(newRunCommand(envFilePath, embeddedConfig, stdout))
	rc.AddCommand(newExportCommand(envFilePath, embeddedConfig, stdout))
	return rc
}

func newServeCommand(envFilePath string, embeddedConfig config.EmbeddedConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the batch HTTP API",
		RunE: func(c *cobra.Command, args []string) error {
			fxApp := fx.New(app.GetServerOptions(envFilePath, embeddedConfig)...)
			fxApp.Run()
			return fxApp.Err()
		},
	}
}

func newRunCommand(envFilePath string, embeddedConfig config.EmbeddedConfig, stdout io.Writer) *cobra.Command {
	var database string
	ccmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Import one file from the data directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			var svc *usecase.BatchJobService
			return withApplication(envFilePath, embeddedConfig, fx.Populate(&svc), func(ctx context.Context) error {
				result, err := svc.RunBatchJob(ctx, args[0], database)
				fmt.Fprintln(stdout, usecase.Describe(result, err))
				if err != nil {
					return fmt.Errorf("import failed (%s)", exception.KindOf(err))
				}
				return nil
			})
		},
	}
	ccmd.Flags().StringVarP(&database, "database", "d", string(dbctx.Primary), "target database: Primary (DB_A) or Secondary (DB_B)")
	return ccmd
}

func newExportCommand(envFilePath string, embeddedConfig config.EmbeddedConfig, stdout io.Writer) *cobra.Command {
	var (
		database    string
		storageName string
		outputDir   string
		compression string
	)
	ccmd := &cobra.Command{
		Use:   "export",
		Short: "Export the records of a database to Parquet",
		RunE: func(c *cobra.Command, args []string) error {
			var svc *usecase.ExportService
			return withApplication(envFilePath, embeddedConfig, fx.Populate(&svc), func(ctx context.Context) error {
				ctx, holder := dbctx.Ensure(ctx)
				holder.SetCurrent(dbctx.Coerce(database))

				props := map[string]interface{}{}
				if outputDir != "" {
					props["output_base_dir"] = outputDir
				}
				if compression != "" {
					props["compression_type"] = compression
				}
				result, err := svc.Export(ctx, storageName, props)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			})
		},
	}

	flags := ccmd.Flags()
	flags.StringVarP(&database, "database", "d", string(dbctx.Primary), "source database: Primary (DB_A) or Secondary (DB_B)")
	flags.StringVarP(&storageName, "storage", "s", "local", "named storage connection to upload to")
	flags.StringVarP(&outputDir, "output", "o", "", "output directory inside the storage")
	flags.StringVar(&compression, "compression", "", "parquet compression codec (SNAPPY, GZIP, ZSTD, LZ4, UNCOMPRESSED)")
	return ccmd
}

// withApplication starts the Fx application without the HTTP surface, runs fn and stops
// the application. SIGINT and SIGTERM cancel the context passed to fn.
func withApplication(envFilePath string, embeddedConfig config.EmbeddedConfig, populate fx.Option, fn func(ctx context.Context) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fxApp := fx.New(append(app.GetApplicationOptions(envFilePath, embeddedConfig), populate)...)
	if err := fxApp.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
		defer stopCancel()
		if err := fxApp.Stop(stopCtx); err != nil {
			logger.Warnf("Application stop failed: %v", err)
		}
	}()

	return fn(ctx)
}
