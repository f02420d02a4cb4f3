package commission

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

func (d *Database) GetDealPaymentIDs(dealID string) ([]string, error) {
	var ids []string
	if err := d.db.Model(&types.Payment{}).
		Where("deal_id = ?", dealID).
		Order("payment_sequence ASC").
		Pluck("payment_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (d *Database) GetSplit(splitID string) (*types.PaymentSplit, error) {
	var record types.PaymentSplit
	if err := d.db.Where("split_id = ?", splitID).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// GetPaymentSplits returns a payment's split rows in creation order
func (d *Database) GetPaymentSplits(paymentID string) ([]types.PaymentSplit, error) {
	var records []types.PaymentSplit
	if err := d.db.Where("payment_id = ?", paymentID).Order("id ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (d *Database) CreateSplit(record *types.PaymentSplit) error {
	return d.db.Create(record).Error
}

func (d *Database) DeleteSplit(splitID string) error {
	return d.db.Unscoped().Where("split_id = ?", splitID).Delete(&types.PaymentSplit{}).Error
}

// SaveCalculatedSplits writes recalculated split rows and the payment's split
// status in one transaction
func (d *Database) SaveCalculatedSplits(paymentID string, records []types.PaymentSplit, splitStatus string) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	now := time.Now()
	for _, record := range records {
		if err := tx.Model(&types.PaymentSplit{}).
			Where("split_id = ?", record.SplitID).
			Updates(map[string]interface{}{
				"origination_percent": record.OriginationPercent,
				"site_percent":        record.SitePercent,
				"deal_percent":        record.DealPercent,
				"origination_usd":     record.OriginationUSD,
				"site_usd":            record.SiteUSD,
				"deal_usd":            record.DealUSD,
				"broker_total":        record.BrokerTotal,
				"updated_at":          now,
			}).Error; err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Model(&types.Payment{}).
		Where("payment_id = ?", paymentID).
		Updates(map[string]interface{}{
			"split_status":     splitStatus,
			"split_checked_at": now,
		}).Error; err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
