package sample

import "go.uber.org/fx"

// Module provides the sample request repository to Fx.
var Module = fx.Provide(NewRepository)
