package inspection

import "go.uber.org/fx"

// Module provides the inspection service to Fx.
var Module = fx.Provide(NewService)
