package gcs

import (
	"go.uber.org/fx"

	storageAdapter "github.com/datasus/sihrd/pkg/batch/adapter/storage"
)

// Module provides the GCSProvider into the storage_providers group.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewGCSProvider,
		fx.ResultTags(`group:"`+storageAdapter.StorageProviderGroup+`"`),
	)),
)
