package salesorder

import "go.uber.org/fx"

// Module provides the sales order repository to Fx.
var Module = fx.Provide(NewRepository)
