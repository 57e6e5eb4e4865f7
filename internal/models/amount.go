package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// BaseUnits is a non-negative integer amount in the smallest native unit.
// Postgres stores it as numeric(78,0); other dialects store the decimal
// string in a text column so values above int64 survive a round trip.
type BaseUnits struct {
	decimal.Decimal
}

func NewBaseUnits(d decimal.Decimal) BaseUnits {
	return BaseUnits{Decimal: d}
}

// GormDBDataType picks the column type per dialect. SQLite would give a
// numeric(78,0) column NUMERIC affinity and round large integers to REAL.
func (BaseUnits) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "numeric(78,0)"
	}
	return "text"
}
