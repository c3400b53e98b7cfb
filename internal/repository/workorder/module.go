package workorder

import "go.uber.org/fx"

// Module provides the work order repository to Fx.
var Module = fx.Provide(NewRepository)
