// Package listener wires the job and chunk listeners into their fx value groups.
package listener

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/surfin-dualdb/pkg/batch/core/application/port"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/listener/logging"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/listener/metrics"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/listener/tracing"
)

// Module aggregates all listeners of the batch framework.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(logging.NewLoggingJobListener, fx.ResultTags(`group:"`+port.JobListenerGroup+`"`)),
		fx.Annotate(metrics.NewMetricsJobListener, fx.ResultTags(`group:"`+port.JobListenerGroup+`"`)),
		fx.Annotate(tracing.NewTracingJobListener, fx.ResultTags(`group:"`+port.JobListenerGroup+`"`)),
		fx.Annotate(logging.NewLoggingChunkListener, fx.ResultTags(`group:"`+port.ChunkListenerGroup+`"`)),
	),
)
