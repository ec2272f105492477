package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// nextNumber returns the next display number for table. Postgres hands it
// out from the table's <table>_number_seq sequence; the unique index on
// number rejects anything that slips past.
func nextNumber(ctx context.Context, db *gorm.DB, table string) (int64, error) {
	var num int64
	var err error
	if db.Dialector.Name() == "postgres" {
		err = db.WithContext(ctx).Raw(fmt.Sprintf("SELECT nextval('%s_number_seq')", table)).Scan(&num).Error
	} else {
		err = db.WithContext(ctx).Table(table).Select("COALESCE(MAX(number), 0) + 1").Scan(&num).Error
	}
	if err != nil {
		return 0, fmt.Errorf("%s: next number: %w", table, err)
	}
	return num, nil
}
