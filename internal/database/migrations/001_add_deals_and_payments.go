package migrations

import (
	"github.com/ksred/klear-commissions/internal/types"
	"gorm.io/gorm"
)

// AddDealsAndPayments creates the deal and payment tables
func AddDealsAndPayments(db *gorm.DB) error {
	if err := db.AutoMigrate(&types.Deal{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&types.Payment{}); err != nil {
		return err
	}

	// Payments are listed per deal in sequence order
	return db.Exec(`CREATE INDEX IF NOT EXISTS idx_payments_deal_sequence
		ON payments(deal_id, payment_sequence)`).Error
}
