package job

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/employee-import/pkg/batch/core/application/port"
)

// Module registers the employee job with the launcher.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewEmployeeJob,
		fx.As(new(port.Job)),
		fx.ResultTags(`group:"jobs"`),
	)),
)
