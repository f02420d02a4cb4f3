package types

import (
	"time"

	"github.com/ksred/klear-commissions/internal/split"
	"github.com/shopspring/decimal"
)

// BrokerName is the lookup shape used for labels.
type BrokerName struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PaymentSplitsResponse is a payment's split editor state: calculated rows,
// totals and the validation banner.
type PaymentSplitsResponse struct {
	PaymentID     string          `json:"payment_id"`
	DealID        string          `json:"deal_id"`
	PaymentAmount decimal.Decimal `json:"payment_amount"`
	// Pools are the per-category bases the amounts were priced against.
	Pools split.Pools `json:"pools"`
	split.Summary
	Timestamp time.Time `json:"timestamp"`
}

// PaymentResponse is one row of a deal's payment list.
type PaymentResponse struct {
	PaymentID       string          `json:"payment_id"`
	DealID          string          `json:"deal_id"`
	PaymentSequence int             `json:"payment_sequence"`
	PaymentAmount   decimal.Decimal `json:"payment_amount"`
	AGCI            decimal.Decimal `json:"agci"`
	Status          string          `json:"status"`
	SplitStatus     string          `json:"split_status"`
	Splits          split.Summary   `json:"splits"`
}

// DealPaymentsResponse lists a deal's payments with aggregated totals.
type DealPaymentsResponse struct {
	DealID          string            `json:"deal_id"`
	Payments        []PaymentResponse `json:"payments"`
	TotalAmount     decimal.Decimal   `json:"total_amount"`
	TotalAGCI       decimal.Decimal   `json:"total_agci"`
	InvalidPayments int               `json:"invalid_payments"`
	Warnings        []string          `json:"warnings,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
}
