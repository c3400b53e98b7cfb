package workorder

import "go.uber.org/fx"

// Module provides the work order service to Fx.
var Module = fx.Provide(NewService)
