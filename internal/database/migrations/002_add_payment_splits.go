package migrations

import (
	"github.com/ksred/klear-commissions/internal/types"
	"gorm.io/gorm"
)

// AddPaymentSplits creates the payment split table and its lookup indexes
func AddPaymentSplits(db *gorm.DB) error {
	if err := db.AutoMigrate(&types.PaymentSplit{}); err != nil {
		return err
	}

	indexes := []string{
		// Broker statements read every split for a broker
		`CREATE INDEX IF NOT EXISTS idx_payment_splits_broker
		 ON payment_splits(broker_id)`,

		// Audit scans payments by split status
		`CREATE INDEX IF NOT EXISTS idx_payments_split_status
		 ON payments(split_status)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
