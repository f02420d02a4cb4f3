package payment

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/klear-commissions/internal/split"
	"github.com/ksred/klear-commissions/internal/types"
	"github.com/ksred/klear-commissions/pkg/response"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrPaymentNotFound = fmt.Errorf("payment %w", response.ErrNotFound)
	ErrDealNotFound    = fmt.Errorf("deal %w", response.ErrNotFound)
	ErrPaymentsExist   = errors.New("payments have already been generated for this deal")
)

var validPaymentStatuses = map[string]bool{
	types.PaymentStatusPending:  true,
	types.PaymentStatusInvoiced: true,
	types.PaymentStatusReceived: true,
}

// BrokerLookup resolves broker IDs to display names
type BrokerLookup interface {
	LookupNames(brokerIDs []string) (map[string]string, error)
}

// Service manages a deal's payment schedule and the split rows each payment carries
type Service struct {
	db      *Database
	brokers BrokerLookup
	cache   *split.Cache
}

// NewService creates a payment service. cache may be nil.
func NewService(gormDB *gorm.DB, brokers BrokerLookup, cache *split.Cache) *Service {
	return &Service{
		db:      NewDatabase(gormDB),
		brokers: brokers,
		cache:   cache,
	}
}

// GeneratePaymentsRequest is the body of POST /deals/:deal_id/payments
type GeneratePaymentsRequest struct {
	BrokerIDs []string `json:"broker_ids" binding:"required"`
}

// GeneratePayments creates the deal's payment schedule. The fee is divided
// evenly across NumberOfPayments in cents with the remainder on the last
// payment, and each payment gets one split row per broker. A single broker
// is assigned 100% of every category.
func (s *Service) GeneratePayments(dealID string, brokerIDs []string) (*types.DealPaymentsResponse, error) {
	logger := log.With().
		Str("deal_id", dealID).
		Str("service", "payment").
		Logger()

	deal, err := s.db.GetDeal(dealID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDealNotFound
		}
		return nil, fmt.Errorf("failed to fetch deal: %w", err)
	}

	count, err := s.db.CountDealPayments(dealID)
	if err != nil {
		return nil, fmt.Errorf("failed to count payments: %w", err)
	}
	if count > 0 {
		return nil, ErrPaymentsExist
	}

	brokerIDs, err = s.checkBrokers(brokerIDs)
	if err != nil {
		return nil, err
	}

	numberOfPayments := deal.NumberOfPayments
	if numberOfPayments <= 0 {
		numberOfPayments = 1
	}
	amounts := installments(deal.FeeUSD, numberOfPayments)

	var percent *float64
	if len(brokerIDs) == 1 {
		percent = split.Float(100)
	}

	now := time.Now()
	payments := make([]types.Payment, 0, numberOfPayments)
	var records []types.PaymentSplit
	for i, amount := range amounts {
		payment := types.Payment{
			PaymentID:       "PAY_" + uuid.New().String(),
			DealID:          dealID,
			PaymentSequence: i + 1,
			PaymentAmount:   split.Float(amount),
			Status:          types.PaymentStatusPending,
			SplitStatus:     types.SplitStatusUnchecked,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		payments = append(payments, payment)

		inputs := make([]split.PaymentSplit, len(brokerIDs))
		for j, brokerID := range brokerIDs {
			inputs[j] = split.PaymentSplit{
				ID:                 "SPL_" + uuid.New().String(),
				PaymentID:          payment.PaymentID,
				BrokerID:           brokerID,
				OriginationPercent: percent,
				SitePercent:        percent,
				DealPercent:        percent,
			}
		}
		for _, calculated := range split.CalculateSplits(inputs, split.Pools{}, deal.Pools(), amount) {
			record := types.PaymentSplit{
				SplitID:   calculated.ID,
				PaymentID: calculated.PaymentID,
				BrokerID:  calculated.BrokerID,
				CreatedAt: now,
				UpdatedAt: now,
			}
			record.ApplyCalculated(calculated)
			records = append(records, record)
		}
	}

	if err := s.db.CreatePaymentsWithSplits(payments, records); err != nil {
		logger.Error().Err(err).Msg("failed to create payments")
		return nil, fmt.Errorf("failed to create payments: %w", err)
	}

	logger.Info().
		Int("payments", len(payments)).
		Int("brokers", len(brokerIDs)).
		Float64("fee_usd", deal.FeeUSD).
		Msg("payment schedule generated")

	return s.ListDealPayments(dealID)
}

// checkBrokers drops duplicate IDs and rejects unknown brokers
func (s *Service) checkBrokers(brokerIDs []string) ([]string, error) {
	seen := make(map[string]bool, len(brokerIDs))
	unique := make([]string, 0, len(brokerIDs))
	for _, id := range brokerIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return nil, response.NewValidationError("broker_ids", "at least one broker is required")
	}

	names, err := s.brokers.LookupNames(unique)
	if err != nil {
		return nil, fmt.Errorf("failed to look up brokers: %w", err)
	}
	for _, id := range unique {
		if _, ok := names[id]; !ok {
			return nil, response.NewValidationError("broker_ids", "unknown broker "+id)
		}
	}
	return unique, nil
}

// installments splits fee into n cent-rounded amounts that sum exactly to fee
func installments(fee float64, n int) []float64 {
	total := decimal.NewFromFloat(fee)
	each := total.Div(decimal.NewFromInt(int64(n))).Round(2)

	amounts := make([]float64, n)
	allocated := decimal.Zero
	for i := 0; i < n-1; i++ {
		amounts[i] = each.InexactFloat64()
		allocated = allocated.Add(each)
	}
	amounts[n-1] = total.Sub(allocated).InexactFloat64()
	return amounts
}

// ListDealPayments returns every payment on the deal with its calculated
// splits, AGCI and validation state
func (s *Service) ListDealPayments(dealID string) (*types.DealPaymentsResponse, error) {
	deal, err := s.db.GetDeal(dealID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDealNotFound
		}
		return nil, fmt.Errorf("failed to fetch deal: %w", err)
	}

	payments, err := s.db.GetDealPayments(dealID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payments: %w", err)
	}

	paymentIDs := make([]string, len(payments))
	for i, p := range payments {
		paymentIDs[i] = p.PaymentID
	}
	grouped, err := s.db.GetSplitsForPayments(paymentIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch splits: %w", err)
	}

	names, err := s.brokers.LookupNames(brokerIDsOf(grouped))
	if err != nil {
		return nil, fmt.Errorf("failed to look up brokers: %w", err)
	}

	resp := &types.DealPaymentsResponse{
		DealID:      dealID,
		Payments:    make([]types.PaymentResponse, 0, len(payments)),
		TotalAmount: decimal.Zero,
		TotalAGCI:   decimal.Zero,
		Timestamp:   time.Now(),
	}

	var totalAmount, totalAGCI float64
	for _, p := range payments {
		amount := split.Value(p.PaymentAmount)
		agci := split.PaymentAGCI(amount, deal.ReferralFeeUSD, deal.HouseUSD, deal.NumberOfPayments)
		result := s.cache.Compute(types.ToSplits(grouped[p.PaymentID]), split.Pools{}, deal.Pools(), amount)
		summary := split.Summarize(result.Splits, names)

		totalAmount += amount
		totalAGCI += agci
		if !summary.Validation.IsValid {
			resp.InvalidPayments++
			for _, w := range summary.Warnings {
				resp.Warnings = append(resp.Warnings, fmt.Sprintf("Payment %d: %s", p.PaymentSequence, w))
			}
		}

		resp.Payments = append(resp.Payments, types.PaymentResponse{
			PaymentID:       p.PaymentID,
			DealID:          p.DealID,
			PaymentSequence: p.PaymentSequence,
			PaymentAmount:   split.RoundCurrency(amount),
			AGCI:            split.RoundCurrency(agci),
			Status:          p.Status,
			SplitStatus:     p.SplitStatus,
			Splits:          summary,
		})
	}
	resp.TotalAmount = split.RoundCurrency(totalAmount)
	resp.TotalAGCI = split.RoundCurrency(totalAGCI)

	return resp, nil
}

func brokerIDsOf(grouped map[string][]types.PaymentSplit) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, records := range grouped {
		for _, r := range records {
			if !seen[r.BrokerID] {
				seen[r.BrokerID] = true
				ids = append(ids, r.BrokerID)
			}
		}
	}
	return ids
}

// GetPayment retrieves a payment by ID
func (s *Service) GetPayment(paymentID string) (*types.Payment, error) {
	payment, err := s.db.GetPayment(paymentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPaymentNotFound
	}
	return payment, err
}

// UpdatePaymentStatus moves a payment through PENDING, INVOICED and RECEIVED
func (s *Service) UpdatePaymentStatus(paymentID string, status string) (*types.Payment, error) {
	if !validPaymentStatuses[status] {
		return nil, response.NewValidationError("status", "must be one of PENDING, INVOICED, RECEIVED")
	}

	rows, err := s.db.UpdatePaymentStatus(paymentID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to update payment status: %w", err)
	}
	if rows == 0 {
		return nil, ErrPaymentNotFound
	}

	log.Info().
		Str("payment_id", paymentID).
		Str("status", status).
		Str("service", "payment").
		Msg("payment status updated")

	return s.GetPayment(paymentID)
}

// DeletePayment removes a payment together with its split rows
func (s *Service) DeletePayment(paymentID string) error {
	rows, err := s.db.DeletePaymentWithSplits(paymentID)
	if err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	if rows == 0 {
		return ErrPaymentNotFound
	}

	log.Info().
		Str("payment_id", paymentID).
		Str("service", "payment").
		Msg("payment deleted")
	return nil
}

// GinHandlers contains HTTP handlers for payment endpoints
type GinHandlers struct {
	service   *Service
	processor *Processor
}

func NewGinHandlers(service *Service, processor *Processor) *GinHandlers {
	return &GinHandlers{
		service:   service,
		processor: processor,
	}
}

func (h *GinHandlers) GeneratePaymentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GeneratePaymentsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		payments, err := h.service.GeneratePayments(c.Param("deal_id"), req.BrokerIDs)
		if errors.Is(err, ErrPaymentsExist) {
			response.Conflict(c, err.Error())
			return
		}
		response.Handle(c, payments, err)
	}
}

func (h *GinHandlers) ListDealPaymentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		payments, err := h.service.ListDealPayments(c.Param("deal_id"))
		response.Handle(c, payments, err)
	}
}

// UpdatePaymentStatusRequest is the body of PUT /payments/:payment_id/status
type UpdatePaymentStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *GinHandlers) UpdatePaymentStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdatePaymentStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		payment, err := h.service.UpdatePaymentStatus(c.Param("payment_id"), req.Status)
		response.Handle(c, payment, err)
	}
}

func (h *GinHandlers) DeletePaymentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		paymentID := c.Param("payment_id")
		err := h.service.DeletePayment(paymentID)
		response.Handle(c, gin.H{"payment_id": paymentID, "deleted": err == nil}, err)
	}
}

// RunAuditHandler runs one split audit pass immediately
func (h *GinHandlers) RunAuditHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := h.processor.RunOnce()
		response.Handle(c, report, err)
	}
}
