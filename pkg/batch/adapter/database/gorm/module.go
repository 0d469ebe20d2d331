package gorm

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/database"
)

// Module provides the connection factory, the routing pool registry and the routing data source.
// Dialects are registered by importing the dialect packages.
var Module = fx.Options(
	fx.Provide(
		NewGormConnectionFactory,
		func(f *GormConnectionFactory) database.ConnectionFactory { return f },
		NewPoolRegistry,
		NewRoutingDataSource,
	),
	fx.Invoke(func(lc fx.Lifecycle, registry *PoolRegistry) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				registry.Close()
				return nil
			},
		})
	}),
)
