package alert

import (
	"go.uber.org/fx"
)

// Module wires the alert stream.
var Module = fx.Options(
	fx.Provide(NewHandler),
	fx.Invoke(Register),
)
