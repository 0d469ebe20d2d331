package logger

import "go.uber.org/fx"

// Module routes Fx container events into this package's logger.
var Module = fx.Options(
	fx.WithLogger(NewFxLoggerAdapter),
)
