package dashboard

import "go.uber.org/fx"

// Module provides the dashboard projection repository to Fx.
var Module = fx.Provide(NewRepository)
