package gorm

import (
	"context"

	"go.uber.org/fx"

	"github.com/datasus/sihrd/pkg/batch/adapter/database"
)

// Module provides the resolver and the transaction manager factory.
// Dialect modules contribute the DBProviders.
var Module = fx.Options(
	fx.Provide(
		NewGormDBConnectionResolver,
		func(r *GormDBConnectionResolver) database.DBConnectionResolver { return r },
		NewGormTransactionManagerFactory,
	),
	fx.Invoke(registerShutdown),
)

func registerShutdown(lc fx.Lifecycle, r *GormDBConnectionResolver) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return r.CloseAll()
		},
	})
}
