// Package app assembles the surfin-dualdb Fx application.
package app

import (
	"go.uber.org/fx"

	// Dialects register themselves with the gorm adapter.
	_ "github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/database/gorm/mysql"
	_ "github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/database/gorm/postgres"
	_ "github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/database/gorm/sqlite"

	gormadapter "github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/storage"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/storage/gcs"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/surfin-dualdb/pkg/batch/core/config"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/support/incrementer"
	stepFactory "github.com/tigerroll/surfin-dualdb/pkg/batch/engine/step/factory"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/infrastructure/lifecycle"
	infraMetrics "github.com/tigerroll/surfin-dualdb/pkg/batch/infrastructure/metrics"
	sqlRepo "github.com/tigerroll/surfin-dualdb/pkg/batch/infrastructure/repository/sql"
	batchlistener "github.com/tigerroll/surfin-dualdb/pkg/batch/listener"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/logger"

	apphttp "github.com/tigerroll/surfin-dualdb/internal/http"
)

// GetApplicationOptions builds the Fx options shared by every command: configuration,
// the routing data source, the lifecycle manager, the pipeline and the services.
func GetApplicationOptions(envFilePath string, embeddedConfig config.EmbeddedConfig) []fx.Option {
	var options []fx.Option

	options = append(options, fx.Supply(
		embeddedConfig,
		fx.Annotate(envFilePath, fx.ResultTags(`name:"envFilePath"`)),
	))
	options = append(options, logger.Module)
	options = append(options, config.Module)
	options = append(options, infraMetrics.Module)
	options = append(options, gormadapter.Module)
	options = append(options, lifecycle.Module)
	options = append(options, sqlRepo.Module)
	options = append(options, incrementer.Module)
	options = append(options, batchlistener.Module)
	options = append(options, stepFactory.Module)
	options = append(options, usecase.Module)
	options = append(options, storage.Module)
	options = append(options, local.Module)
	options = append(options, gcs.Module)

	return options
}

// GetServerOptions adds the HTTP surface to the application options.
func GetServerOptions(envFilePath string, embeddedConfig config.EmbeddedConfig) []fx.Option {
	return append(GetApplicationOptions(envFilePath, embeddedConfig), apphttp.Module)
}
