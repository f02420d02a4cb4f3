package broker

import (
	"github.com/ksred/klear-commissions/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateBroker(broker *types.Broker) error {
	return d.db.Create(broker).Error
}

func (d *Database) GetBroker(brokerID string) (*types.Broker, error) {
	var broker types.Broker
	if err := d.db.Where("broker_id = ?", brokerID).First(&broker).Error; err != nil {
		return nil, err
	}
	return &broker, nil
}

func (d *Database) GetBrokerByEmail(email string) (*types.Broker, error) {
	var broker types.Broker
	if err := d.db.Where("email = ?", email).Limit(1).Find(&broker).Error; err != nil {
		return nil, err
	}
	if broker.BrokerID == "" {
		return nil, nil
	}
	return &broker, nil
}

func (d *Database) ListBrokers() ([]types.Broker, error) {
	var brokers []types.Broker
	if err := d.db.Order("name ASC").Find(&brokers).Error; err != nil {
		return nil, err
	}
	return brokers, nil
}

func (d *Database) GetBrokersByIDs(brokerIDs []string) ([]types.Broker, error) {
	var brokers []types.Broker
	if len(brokerIDs) == 0 {
		return brokers, nil
	}
	if err := d.db.Where("broker_id IN ?", brokerIDs).Find(&brokers).Error; err != nil {
		return nil, err
	}
	return brokers, nil
}
