package types

import (
	"time"

	"github.com/ksred/klear-commissions/internal/split"
	"gorm.io/gorm"
)

// Deal status values
const (
	DealStatusOpen   = "OPEN"
	DealStatusClosed = "CLOSED"
)

// Payment status values
const (
	PaymentStatusPending  = "PENDING"
	PaymentStatusInvoiced = "INVOICED"
	PaymentStatusReceived = "RECEIVED"
)

// Split audit status values stored on a payment
const (
	SplitStatusUnchecked = "UNCHECKED"
	SplitStatusValid     = "VALID"
	SplitStatusInvalid   = "INVALID"
)

type Broker struct {
	gorm.Model `json:"-"`
	BrokerID   string    `gorm:"uniqueIndex" json:"broker_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Deal carries the dollar pools brokers are paid from. A nil pool means the
// deal does not track that category and payments fall back to their amount.
type Deal struct {
	gorm.Model       `json:"-"`
	DealID           string    `gorm:"uniqueIndex" json:"deal_id"`
	ClientID         string    `gorm:"index" json:"client_id"`
	DealName         string    `json:"deal_name"`
	FeeUSD           float64   `json:"fee_usd"`
	OriginationUSD   *float64  `json:"origination_usd"`
	SiteUSD          *float64  `json:"site_usd"`
	DealUSD          *float64  `json:"deal_usd"`
	NumberOfPayments int       `json:"number_of_payments"`
	ReferralFeeUSD   *float64  `json:"referral_fee_usd"`
	HouseUSD         *float64  `json:"house_usd"`
	Status           string    `json:"status"` // OPEN, CLOSED
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Pools returns the deal's category pools.
func (d *Deal) Pools() split.Pools {
	return split.Pools{
		OriginationUSD: d.OriginationUSD,
		SiteUSD:        d.SiteUSD,
		DealUSD:        d.DealUSD,
	}
}

type Payment struct {
	gorm.Model      `json:"-"`
	PaymentID       string     `gorm:"uniqueIndex" json:"payment_id"`
	DealID          string     `gorm:"index" json:"deal_id"`
	PaymentSequence int        `json:"payment_sequence"`
	PaymentAmount   *float64   `json:"payment_amount"`
	Status          string     `json:"status"`       // PENDING, INVOICED, RECEIVED
	SplitStatus     string     `json:"split_status"` // UNCHECKED, VALID, INVALID
	SplitCheckedAt  *time.Time `json:"split_checked_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// PaymentSplit is the stored form of one broker's split of a payment. The
// USD columns and BrokerTotal are only ever written from split.CalculateSplits.
type PaymentSplit struct {
	gorm.Model         `json:"-"`
	SplitID            string    `gorm:"uniqueIndex" json:"split_id"`
	PaymentID          string    `gorm:"uniqueIndex:idx_payment_splits_payment_broker" json:"payment_id"`
	BrokerID           string    `gorm:"uniqueIndex:idx_payment_splits_payment_broker" json:"broker_id"`
	OriginationPercent *float64  `json:"origination_percent"`
	SitePercent        *float64  `json:"site_percent"`
	DealPercent        *float64  `json:"deal_percent"`
	OriginationUSD     float64   `json:"origination_usd"`
	SiteUSD            float64   `json:"site_usd"`
	DealUSD            float64   `json:"deal_usd"`
	BrokerTotal        float64   `json:"broker_total"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ToSplit converts the record into the calculator's input form.
func (p *PaymentSplit) ToSplit() split.PaymentSplit {
	return split.PaymentSplit{
		ID:                 p.SplitID,
		PaymentID:          p.PaymentID,
		BrokerID:           p.BrokerID,
		OriginationPercent: p.OriginationPercent,
		SitePercent:        p.SitePercent,
		DealPercent:        p.DealPercent,
		OriginationUSD:     p.OriginationUSD,
		SiteUSD:            p.SiteUSD,
		DealUSD:            p.DealUSD,
		BrokerTotal:        p.BrokerTotal,
	}
}

// ApplyCalculated copies inputs and derived amounts from a calculated split.
func (p *PaymentSplit) ApplyCalculated(s split.PaymentSplit) {
	p.OriginationPercent = s.OriginationPercent
	p.SitePercent = s.SitePercent
	p.DealPercent = s.DealPercent
	p.OriginationUSD = s.OriginationUSD
	p.SiteUSD = s.SiteUSD
	p.DealUSD = s.DealUSD
	p.BrokerTotal = s.BrokerTotal
}

// ToSplits converts stored records into calculator inputs, preserving order.
func ToSplits(records []PaymentSplit) []split.PaymentSplit {
	out := make([]split.PaymentSplit, len(records))
	for i := range records {
		out[i] = records[i].ToSplit()
	}
	return out
}

type IdempotencyRecord struct {
	gorm.Model
	IdempotencyKey string    `gorm:"uniqueIndex" json:"idempotency_key"`
	ResourceID     string    `json:"resource_id"`
	ResourceType   string    `json:"resource_type"`
	ExpiresAt      time.Time `json:"expires_at"`
}
