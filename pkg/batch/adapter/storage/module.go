package storage

import (
	"context"

	"go.uber.org/fx"
)

// ConnectionGroup is the Fx group collecting storage connections.
const ConnectionGroup = "storage_connections"

// OpenerParams defines the dependencies for NewOpenerProvider.
type OpenerParams struct {
	fx.In
	Lifecycle   fx.Lifecycle
	Connections []StorageConnection `group:"storage_connections"`
}

// NewOpenerProvider builds the Opener from every registered connection.
func NewOpenerProvider(p OpenerParams) *Opener {
	o := NewOpener(p.Connections...)
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error { return o.Close() },
	})
	return o
}

// Module provides *Opener. Backends are contributed by the local and gcs modules.
var Module = fx.Options(
	fx.Provide(NewOpenerProvider),
)
