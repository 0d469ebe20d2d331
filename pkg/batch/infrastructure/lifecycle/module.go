package lifecycle

import "go.uber.org/fx"

// Module provides the lifecycle Manager and tears down leftovers on stop.
var Module = fx.Options(
	fx.Provide(NewManager),
	fx.Invoke(func(lc fx.Lifecycle, m *Manager) {
		lc.Append(fx.Hook{OnStop: m.Shutdown})
	}),
)
