package local

import (
	"go.uber.org/fx"

	storageAdapter "github.com/tigerroll/employee-import/pkg/batch/adapter/storage"
)

// Module provides the local file system connection to the storage opener.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		func() storageAdapter.StorageConnection { return NewLocalAdapter("", "local") },
		fx.ResultTags(`group:"`+storageAdapter.ConnectionGroup+`"`),
	)),
)
