package history

import "go.uber.org/fx"

// Module provides the status history repository to Fx.
var Module = fx.Provide(NewRepository)
