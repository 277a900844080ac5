package table

import (
	"go.uber.org/fx"
)

// Module wires HTTP table handlers.
var Module = fx.Options(
	fx.Provide(NewHandler),
	fx.Invoke(Register),
)
