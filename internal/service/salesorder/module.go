package salesorder

import "go.uber.org/fx"

// Module provides the sales order service to Fx.
var Module = fx.Provide(NewService)
