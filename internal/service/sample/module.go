package sample

import "go.uber.org/fx"

// Module provides the sample request service to Fx.
var Module = fx.Provide(NewService)
