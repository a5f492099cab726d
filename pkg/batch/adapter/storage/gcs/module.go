package gcs

import (
	"go.uber.org/fx"

	storageAdapter "github.com/tigerroll/employee-import/pkg/batch/adapter/storage"
	config "github.com/tigerroll/employee-import/pkg/batch/core/config"
)

// Module provides the GCS connection to the storage opener.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		func(cfg *config.Config) storageAdapter.StorageConnection {
			return NewGCSAdapter(cfg.Input.GCSCredentialsFile, "gcs")
		},
		fx.ResultTags(`group:"`+storageAdapter.ConnectionGroup+`"`),
	)),
)
