package local

import (
	"go.uber.org/fx"

	storageAdapter "github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/storage"
)

// Module provides the LocalProvider in the storage provider group.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewLocalProvider,
		fx.As(new(storageAdapter.StorageProvider)),
		fx.ResultTags(`group:"`+storageAdapter.ProviderGroup+`"`),
	)),
)
