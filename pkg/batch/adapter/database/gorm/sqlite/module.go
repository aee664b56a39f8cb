package sqlite

import (
	"go.uber.org/fx"

	"github.com/datasus/sihrd/pkg/batch/adapter/database"
)

// Module provides the SQLite DBProvider into the db_providers group.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			NewProvider,
			fx.ResultTags(`group:"`+database.DBProviderGroup+`"`),
		),
	),
)
