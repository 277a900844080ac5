package diagnostics

import (
	"go.uber.org/fx"
)

// Module wires the diagnostics endpoint.
var Module = fx.Options(
	fx.Provide(NewHandler),
	fx.Invoke(Register),
)
