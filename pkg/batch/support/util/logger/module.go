package logger

import "go.uber.org/fx"

// Module installs the fx event adapter so container wiring is logged like everything else.
var Module = fx.Options(
	fx.WithLogger(NewFxLoggerAdapter),
)
