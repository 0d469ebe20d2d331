package metrics

import (
	"go.uber.org/fx"
)

// Module provides the no-op recorder and tracer. Use it when no infrastructure
// metrics module is installed.
var Module = fx.Options(
	fx.Provide(NewNoOpMetricRecorder),
	fx.Provide(NewNoOpTracer),
)
