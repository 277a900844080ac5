package report

import (
	"go.uber.org/fx"
)

// Module wires HTTP report handlers.
var Module = fx.Options(
	fx.Provide(NewHandler),
	fx.Invoke(Register),
)
