package models

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"gorm.io/gen"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

/*
Model generation & column report.

Run the server binary with GENERATE_MODELS=true to migrate the schema and emit
typed query helpers into ./generated, or with GENERATE_COLUMN_REPORT=true to
only print the columns that exist in the database but are unknown to the Go
models (left over after a field was renamed or dropped).
*/

// All lists every persisted model, in migration order.
func All() []any {
	return []any{&BlogConfig{}, &Post{}}
}

// Migrate creates or alters the tables of every model.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func GenerateModels(db *gorm.DB) error {
	migrateDB := db.Session(&gorm.Session{
		SkipDefaultTransaction: true,
		PrepareStmt:            false,
	})

	log.Info().Msg("Migrating models...")
	if err := Migrate(migrateDB); err != nil {
		return err
	}

	if _, err := GenerateColumnMismatchReport(db); err != nil {
		return err
	}

	g := gen.NewGenerator(gen.Config{
		OutPath:           "./generated",
		Mode:              gen.WithDefaultQuery | gen.WithQueryInterface,
		FieldNullable:     true,
		FieldCoverable:    true,
		FieldWithIndexTag: true,
		FieldWithTypeTag:  true,
	})
	g.UseDB(db)
	g.ApplyBasic(BlogConfig{}, Post{})
	g.Execute()

	log.Info().Msg("Model generation complete")
	return nil
}

// GenerateColumnMismatchReport logs, per table, the database columns that no
// model field maps to and returns them keyed by table name.
func GenerateColumnMismatchReport(db *gorm.DB) (map[string][]string, error) {
	report := make(map[string][]string)
	cache := &sync.Map{}

	for _, model := range All() {
		s, err := schema.Parse(model, cache, db.NamingStrategy)
		if err != nil {
			return nil, fmt.Errorf("parse schema: %w", err)
		}

		if !db.Migrator().HasTable(s.Table) {
			log.Warn().Str("table", s.Table).Msg("Table does not exist yet (will be created during migration)")
			continue
		}

		columnTypes, err := db.Migrator().ColumnTypes(model)
		if err != nil {
			return nil, fmt.Errorf("error querying columns for table %s: %w", s.Table, err)
		}

		var dbColumns []string
		for _, ct := range columnTypes {
			dbColumns = append(dbColumns, ct.Name())
		}

		mismatches := findColumnMismatches(dbColumns, s.DBNames)
		if len(mismatches) > 0 {
			log.Warn().Str("table", s.Table).Strs("columns", mismatches).Msg("Columns not accounted for in model")
			report[s.Table] = mismatches
		} else {
			log.Info().Str("table", s.Table).Msg("All columns are accounted for in the model")
		}
	}

	return report, nil
}

// findColumnMismatches finds columns that exist in the database but not in the model
func findColumnMismatches(dbColumns, modelFields []string) []string {
	modelFieldSet := make(map[string]bool, len(modelFields))
	for _, field := range modelFields {
		modelFieldSet[field] = true
	}

	var mismatches []string
	for _, col := range dbColumns {
		if !modelFieldSet[col] {
			mismatches = append(mismatches, col)
		}
	}
	sort.Strings(mismatches)

	return mismatches
}
