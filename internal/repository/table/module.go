package table

import "go.uber.org/fx"

// Module provides the table session repository to Fx.
var Module = fx.Provide(NewRepository)
