package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ksred/klear-commissions/internal/split"
	"github.com/ksred/klear-commissions/internal/types"
	"github.com/rs/zerolog/log"
)

const auditBatchSize = 100

// AuditReport summarises one pass of the split audit
type AuditReport struct {
	Checked   int       `json:"checked"`
	Valid     int       `json:"valid"`
	Invalid   int       `json:"invalid"`
	CheckedAt time.Time `json:"checked_at"`
}

// Processor periodically re-validates every payment's splits and records the
// outcome on the payment so invalid splits are visible without opening them
type Processor struct {
	service      *Service
	processDelay time.Duration // Time between audit passes

	mu sync.Mutex // one pass at a time
}

func NewProcessor(service *Service, interval time.Duration) *Processor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Processor{
		service:      service,
		processDelay: interval,
	}
}

// Start begins the audit loop and blocks until ctx is cancelled
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "split_auditor").Logger()
	logger.Info().Dur("interval", p.processDelay).Msg("starting split auditor")

	ticker := time.NewTicker(p.processDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down split auditor")
			return
		case <-ticker.C:
			if _, err := p.RunOnce(); err != nil {
				logger.Error().Err(err).Msg("failed to audit payment splits")
			}
		}
	}
}

// RunOnce validates the splits of every payment and stores VALID or INVALID
// on each one
func (p *Processor) RunOnce() (*AuditReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	logger := log.With().Str("component", "split_auditor").Logger()
	report := &AuditReport{CheckedAt: time.Now()}
	db := p.service.db

	err := db.ForEachPaymentBatch(auditBatchSize, func(batch []types.Payment) error {
		dealIDs := make([]string, 0, len(batch))
		paymentIDs := make([]string, 0, len(batch))
		for _, payment := range batch {
			dealIDs = append(dealIDs, payment.DealID)
			paymentIDs = append(paymentIDs, payment.PaymentID)
		}

		deals, err := db.GetDealsByIDs(dealIDs)
		if err != nil {
			return fmt.Errorf("failed to fetch deals: %w", err)
		}
		grouped, err := db.GetSplitsForPayments(paymentIDs)
		if err != nil {
			return fmt.Errorf("failed to fetch splits: %w", err)
		}

		for _, payment := range batch {
			deal := deals[payment.DealID]
			result := p.service.cache.Compute(
				types.ToSplits(grouped[payment.PaymentID]),
				split.Pools{},
				deal.Pools(),
				split.Value(payment.PaymentAmount),
			)

			status := types.SplitStatusValid
			if !result.Validation.IsValid {
				status = types.SplitStatusInvalid
				event := logger.Warn().
					Str("payment_id", payment.PaymentID).
					Str("deal_id", payment.DealID).
					Int("splits", len(result.Splits))
				for _, d := range result.Validation.Deviations() {
					event = event.Float64(string(d.Category)+"_total", d.Sum)
				}
				event.Msg("payment splits do not total 100%")
			}

			if err := db.UpdateSplitStatus(payment.PaymentID, status, report.CheckedAt); err != nil {
				logger.Error().
					Err(err).
					Str("payment_id", payment.PaymentID).
					Msg("failed to record split status")
				continue
			}

			report.Checked++
			if status == types.SplitStatusValid {
				report.Valid++
			} else {
				report.Invalid++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Int("checked", report.Checked).
		Int("valid", report.Valid).
		Int("invalid", report.Invalid).
		Msg("split audit completed")

	return report, nil
}
