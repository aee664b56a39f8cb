package gorm

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// executor carries the statements shared by connections and transactions.
// db is either a pooled *gorm.DB or a transaction handle.
type executor struct {
	db *gorm.DB
}

// ExecuteUpdate implements tx.TxExecutor.
func (e executor) ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (int64, error) {
	db := e.db.WithContext(ctx)
	if tableName != "" {
		db = db.Table(tableName)
	}

	var result *gorm.DB
	switch operation {
	case "CREATE":
		// model is a pointer to an entity or a slice of entities.
		result = db.Create(model)
	case "UPDATE":
		result = db.Model(model).Where(query).Updates(model)
	case "DELETE":
		if len(query) > 0 {
			db = db.Where(query)
		} else {
			db = db.Session(&gorm.Session{AllowGlobalUpdate: true})
		}
		result = db.Delete(model)
	default:
		return 0, fmt.Errorf("unsupported update operation: %s", operation)
	}

	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// CreateTable implements tx.SchemaExecutor.
func (e executor) CreateTable(ctx context.Context, model interface{}, tableName string) error {
	return e.db.WithContext(ctx).Table(tableName).Migrator().CreateTable(model)
}

// DropTable implements tx.SchemaExecutor.
func (e executor) DropTable(ctx context.Context, tableName string) error {
	return e.db.WithContext(ctx).Exec("DROP TABLE IF EXISTS ?", clause.Table{Name: tableName}).Error
}

// RenameTable implements tx.SchemaExecutor.
func (e executor) RenameTable(ctx context.Context, oldName, newName string) error {
	return e.db.WithContext(ctx).Migrator().RenameTable(oldName, newName)
}

// HasTable implements tx.SchemaExecutor.
func (e executor) HasTable(ctx context.Context, tableName string) (bool, error) {
	return e.db.WithContext(ctx).Migrator().HasTable(tableName), nil
}
