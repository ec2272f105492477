package infra

import (
	"fmt"

	"fairtrace/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase establishes a GORM connection backed by pgx, migrates every
// model and applies the postgres-only patches GORM cannot express.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	if err := applySchemaPatches(db); err != nil {
		return nil, fmt.Errorf("schema patches: %w", err)
	}
	return db, nil
}

// Migrate creates or updates every table, including the three edge tables
// that share model.Edge. It is dialect neutral so tests run it on sqlite.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Node{},
		&model.SupplyChain{},
		&model.Operation{},
		&model.NodeOperation{},
		&model.Product{},
		&model.Batch{},
		&model.Transaction{},
		&model.SourceBatch{},
		&model.Claim{},
		&model.Criterion{},
		&model.CriterionField{},
		&model.AttachedBatchClaim{},
		&model.FieldResponse{},
		&model.AttachedCompanyClaim{},
		&model.Theme{},
		&model.StockRequest{},
		&model.User{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	for _, table := range []string{
		model.TransactionEdgesTable,
		model.BatchEdgesTable,
		model.ConnectionEdgesTable,
	} {
		if err := db.Table(table).AutoMigrate(&model.Edge{}); err != nil {
			return fmt.Errorf("AutoMigrate %s: %w", table, err)
		}
		idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_child ON %s (child_id)", table, table)
		if err := db.Exec(idx).Error; err != nil {
			return fmt.Errorf("index %s: %w", table, err)
		}
	}
	return nil
}

// numberSequence creates <table>_number_seq once, starting after the highest
// number already in table.
func numberSequence(table string) string {
	return fmt.Sprintf(`DO $$ BEGIN
	  IF NOT EXISTS (SELECT 1 FROM pg_class WHERE relkind = 'S' AND relname = '%[1]s_number_seq') THEN
	    CREATE SEQUENCE %[1]s_number_seq OWNED BY %[1]s.number;
	    PERFORM setval('%[1]s_number_seq', COALESCE((SELECT MAX(number) FROM %[1]s), 0) + 1, false);
	  END IF;
	END $$`, table)
}

// applySchemaPatches runs idempotent postgres DDL: quantity guards, the
// number sequences and the partial index behind the blockchain retry cron.
func applySchemaPatches(db *gorm.DB) error {
	patches := []string{
		numberSequence("batches"),
		numberSequence("transactions"),
		`DO $$ BEGIN
		  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_batches_quantity') THEN
		    ALTER TABLE batches ADD CONSTRAINT chk_batches_quantity
		        CHECK (current_quantity >= 0 AND current_quantity <= initial_quantity);
		  END IF;
		END $$`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_blockchain_pending
		    ON transactions (blockchain_next_attempt)
		    WHERE blockchain_status = 'pending'`,
	}

	for _, sql := range patches {
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", sql[:min(len(sql), 60)], err)
		}
	}
	return nil
}
