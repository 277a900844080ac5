package settings

import (
	"go.uber.org/fx"
)

// Module wires the backend settings form.
var Module = fx.Options(
	fx.Provide(NewHandler),
	fx.Invoke(Register),
)
