package usecase

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/surfin-dualdb/pkg/batch/core/application/port"
)

// Module provides the launcher, the orchestrator and the read side services.
var Module = fx.Options(
	fx.Provide(NewSimpleJobLauncher),
	fx.Provide(func(l *SimpleJobLauncher) port.JobLauncher { return l }),
	fx.Provide(NewBatchJobService),
	fx.Provide(NewRecordQueryService),
	fx.Provide(NewExportService),
)
