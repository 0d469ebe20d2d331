package incrementer

import "go.uber.org/fx"

// Module provides the invocation id generator.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewUUIDInvocationIDGenerator,
		fx.As(new(InvocationIDGenerator)),
	)),
)
