package deal

import (
	"errors"
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

func (d *Database) GetDeal(dealID string) (*types.Deal, error) {
	var deal types.Deal
	if err := d.db.Where("deal_id = ?", dealID).First(&deal).Error; err != nil {
		return nil, err
	}
	return &deal, nil
}

func (d *Database) GetClientDeals(clientID string) ([]types.Deal, error) {
	var deals []types.Deal
	if err := d.db.Where("client_id = ?", clientID).Order("created_at DESC").Find(&deals).Error; err != nil {
		return nil, err
	}
	return deals, nil
}

// UpdateDealPools overwrites the three category pools, including setting them to NULL
func (d *Database) UpdateDealPools(dealID string, originationUSD, siteUSD, dealUSD *float64) error {
	result := d.db.Model(&types.Deal{}).
		Where("deal_id = ?", dealID).
		Updates(map[string]interface{}{
			"origination_usd": originationUSD,
			"site_usd":        siteUSD,
			"deal_usd":        dealUSD,
			"updated_at":      time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CreateDealWithIdempotency creates a new deal and idempotency record in a transaction
func (d *Database) CreateDealWithIdempotency(deal *types.Deal, idempotencyKey string) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Create(deal).Error; err != nil {
		tx.Rollback()
		return err
	}

	record := types.IdempotencyRecord{
		IdempotencyKey: idempotencyKey,
		ResourceID:     deal.DealID,
		ResourceType:   "deal",
		ExpiresAt:      time.Now().Add(24 * time.Hour),
	}

	if err := tx.Create(&record).Error; err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// GetIdempotencyRecord retrieves an unexpired idempotency record by key, or nil
func (d *Database) GetIdempotencyRecord(key string) (*types.IdempotencyRecord, error) {
	var record types.IdempotencyRecord
	if err := d.db.Where("idempotency_key = ?", key).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if record.ExpiresAt.Before(time.Now()) {
		return nil, nil
	}
	return &record, nil
}

// DeleteIdempotencyRecord removes an expired key so it can be reused
func (d *Database) DeleteIdempotencyRecord(key string) error {
	return d.db.Unscoped().Where("idempotency_key = ?", key).Delete(&types.IdempotencyRecord{}).Error
}
