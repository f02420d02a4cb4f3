package payment

import (
	"time"

	"github.com/ksred/klear-commissions/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) GetPayment(paymentID string) (*types.Payment, error) {
	var payment types.Payment
	if err := d.db.Where("payment_id = ?", paymentID).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (d *Database) GetDeal(dealID string) (*types.Deal, error) {
	var deal types.Deal
	if err := d.db.Where("deal_id = ?", dealID).First(&deal).Error; err != nil {
		return nil, err
	}
	return &deal, nil
}

func (d *Database) GetDealsByIDs(dealIDs []string) (map[string]types.Deal, error) {
	dealMap := make(map[string]types.Deal)
	if len(dealIDs) == 0 {
		return dealMap, nil
	}

	var deals []types.Deal
	if err := d.db.Where("deal_id IN ?", dealIDs).Find(&deals).Error; err != nil {
		return nil, err
	}
	for _, deal := range deals {
		dealMap[deal.DealID] = deal
	}
	return dealMap, nil
}

func (d *Database) GetDealPayments(dealID string) ([]types.Payment, error) {
	var payments []types.Payment
	if err := d.db.Where("deal_id = ?", dealID).Order("payment_sequence ASC").Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (d *Database) CountDealPayments(dealID string) (int64, error) {
	var count int64
	if err := d.db.Model(&types.Payment{}).Where("deal_id = ?", dealID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// GetSplitsForPayments returns split records grouped by payment ID, each group
// in creation order
func (d *Database) GetSplitsForPayments(paymentIDs []string) (map[string][]types.PaymentSplit, error) {
	grouped := make(map[string][]types.PaymentSplit)
	if len(paymentIDs) == 0 {
		return grouped, nil
	}

	var splits []types.PaymentSplit
	if err := d.db.Where("payment_id IN ?", paymentIDs).Order("id ASC").Find(&splits).Error; err != nil {
		return nil, err
	}
	for _, s := range splits {
		grouped[s.PaymentID] = append(grouped[s.PaymentID], s)
	}
	return grouped, nil
}

// CreatePaymentsWithSplits stores generated payments and their split rows in one transaction
func (d *Database) CreatePaymentsWithSplits(payments []types.Payment, splits []types.PaymentSplit) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&payments).Error; err != nil {
			return err
		}
		if len(splits) == 0 {
			return nil
		}
		return tx.Create(&splits).Error
	})
}

// DeletePaymentWithSplits removes a payment and every split that belongs to it
func (d *Database) DeletePaymentWithSplits(paymentID string) (int64, error) {
	var deleted int64
	err := d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("payment_id = ?", paymentID).Delete(&types.PaymentSplit{}).Error; err != nil {
			return err
		}
		result := tx.Unscoped().Where("payment_id = ?", paymentID).Delete(&types.Payment{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected
		return nil
	})
	return deleted, err
}

func (d *Database) UpdatePaymentStatus(paymentID string, status string) (int64, error) {
	result := d.db.Model(&types.Payment{}).
		Where("payment_id = ?", paymentID).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}

func (d *Database) UpdateSplitStatus(paymentID string, status string, checkedAt time.Time) error {
	return d.db.Model(&types.Payment{}).
		Where("payment_id = ?", paymentID).
		Updates(map[string]interface{}{
			"split_status":     status,
			"split_checked_at": checkedAt,
		}).Error
}

// ForEachPaymentBatch walks every payment in batches of size
func (d *Database) ForEachPaymentBatch(size int, fn func(batch []types.Payment) error) error {
	var batch []types.Payment
	return d.db.Order("id ASC").FindInBatches(&batch, size, func(tx *gorm.DB, _ int) error {
		return fn(batch)
	}).Error
}
