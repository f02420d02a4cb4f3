package commission

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/klear-commissions/internal/split"
	"github.com/ksred/klear-commissions/internal/types"
	"github.com/ksred/klear-commissions/pkg/response"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var (
	ErrPaymentNotFound = fmt.Errorf("payment %w", response.ErrNotFound)
	ErrSplitNotFound   = fmt.Errorf("split %w", response.ErrNotFound)
	ErrDuplicateSplit  = errors.New("broker already has a split on this payment")
)

// BrokerLookup resolves broker IDs to display names
type BrokerLookup interface {
	LookupNames(brokerIDs []string) (map[string]string, error)
}

// Service edits broker commission splits. Every edit recalculates all splits
// of the payment and persists the derived amounts before returning.
type Service struct {
	db      *Database
	brokers BrokerLookup
	cache   *split.Cache

	locks sync.Map // payment ID -> *sync.Mutex
}

// NewService creates a commission service. cache may be nil.
func NewService(gormDB *gorm.DB, brokers BrokerLookup, cache *split.Cache) *Service {
	return &Service{
		db:      NewDatabase(gormDB),
		brokers: brokers,
		cache:   cache,
	}
}

// SplitPercents are the editable inputs of a split. A nil value clears the field.
type SplitPercents struct {
	OriginationPercent *float64 `json:"origination_percent"`
	SitePercent        *float64 `json:"site_percent"`
	DealPercent        *float64 `json:"deal_percent"`
}

// AddBrokerRequest is the body of POST /payments/:payment_id/splits
type AddBrokerRequest struct {
	BrokerID string `json:"broker_id" binding:"required"`
	SplitPercents
}

// PreviewSplit overrides one split in a preview. Entries without a SplitID
// are treated as brokers being added.
type PreviewSplit struct {
	SplitID  string `json:"split_id"`
	BrokerID string `json:"broker_id"`
	SplitPercents
}

// PreviewRequest is the body of POST /payments/:payment_id/splits/preview
type PreviewRequest struct {
	Splits      []PreviewSplit `json:"splits"`
	DealAmounts split.Pools    `json:"deal_amounts"`
}

// paymentState is everything a recalculation of one payment needs
type paymentState struct {
	payment *types.Payment
	deal    *types.Deal
	records []types.PaymentSplit
}

func (s *Service) lockPayment(paymentID string) func() {
	m, _ := s.locks.LoadOrStore(paymentID, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *Service) loadPayment(paymentID string) (*paymentState, error) {
	payment, err := s.db.GetPayment(paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to fetch payment: %w", err)
	}

	deal, err := s.db.GetDeal(payment.DealID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch deal for payment: %w", err)
	}

	records, err := s.db.GetPaymentSplits(paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch splits: %w", err)
	}

	return &paymentState{payment: payment, deal: deal, records: records}, nil
}

// GetPaymentSplits returns the payment's calculated splits and validation
func (s *Service) GetPaymentSplits(paymentID string) (*types.PaymentSplitsResponse, error) {
	state, err := s.loadPayment(paymentID)
	if err != nil {
		return nil, err
	}

	result := s.compute(state, types.ToSplits(state.records), split.Pools{})
	return s.buildResponse(state, result, split.Pools{})
}

// UpdateSplit replaces the three percentage inputs of one split
func (s *Service) UpdateSplit(splitID string, percents SplitPercents) (*types.PaymentSplitsResponse, error) {
	record, err := s.db.GetSplit(splitID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSplitNotFound
		}
		return nil, fmt.Errorf("failed to fetch split: %w", err)
	}

	unlock := s.lockPayment(record.PaymentID)
	defer unlock()

	state, err := s.loadPayment(record.PaymentID)
	if err != nil {
		return nil, err
	}

	found := false
	for i := range state.records {
		if state.records[i].SplitID == splitID {
			state.records[i].OriginationPercent = percents.OriginationPercent
			state.records[i].SitePercent = percents.SitePercent
			state.records[i].DealPercent = percents.DealPercent
			found = true
		}
	}
	// Removed between the lookup and taking the lock
	if !found {
		return nil, ErrSplitNotFound
	}

	log.Debug().
		Str("split_id", splitID).
		Str("payment_id", record.PaymentID).
		Str("service", "commission").
		Msg("updating split percentages")

	return s.recalculate(state)
}

// AddBroker adds a split for brokerID to the payment
func (s *Service) AddBroker(paymentID string, req AddBrokerRequest) (*types.PaymentSplitsResponse, error) {
	names, err := s.brokers.LookupNames([]string{req.BrokerID})
	if err != nil {
		return nil, fmt.Errorf("failed to look up broker: %w", err)
	}
	if _, ok := names[req.BrokerID]; !ok {
		return nil, response.NewValidationError("broker_id", "unknown broker "+req.BrokerID)
	}

	unlock := s.lockPayment(paymentID)
	defer unlock()

	state, err := s.loadPayment(paymentID)
	if err != nil {
		return nil, err
	}
	for _, r := range state.records {
		if r.BrokerID == req.BrokerID {
			return nil, ErrDuplicateSplit
		}
	}

	record := types.PaymentSplit{
		SplitID:            "SPL_" + uuid.New().String(),
		PaymentID:          paymentID,
		BrokerID:           req.BrokerID,
		OriginationPercent: req.OriginationPercent,
		SitePercent:        req.SitePercent,
		DealPercent:        req.DealPercent,
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}
	if err := s.db.CreateSplit(&record); err != nil {
		return nil, fmt.Errorf("failed to create split: %w", err)
	}
	state.records = append(state.records, record)

	log.Info().
		Str("split_id", record.SplitID).
		Str("payment_id", paymentID).
		Str("broker_id", req.BrokerID).
		Str("service", "commission").
		Msg("broker added to payment")

	return s.recalculate(state)
}

// RemoveSplit deletes a split and recalculates the rest of the payment
func (s *Service) RemoveSplit(splitID string) (*types.PaymentSplitsResponse, error) {
	record, err := s.db.GetSplit(splitID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSplitNotFound
		}
		return nil, fmt.Errorf("failed to fetch split: %w", err)
	}

	unlock := s.lockPayment(record.PaymentID)
	defer unlock()

	if err := s.db.DeleteSplit(splitID); err != nil {
		return nil, fmt.Errorf("failed to delete split: %w", err)
	}

	state, err := s.loadPayment(record.PaymentID)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("split_id", splitID).
		Str("payment_id", record.PaymentID).
		Str("service", "commission").
		Msg("split removed from payment")

	return s.recalculate(state)
}

// PreviewSplits calculates and validates hypothetical percentages without
// storing anything. DealAmounts override the deal's pools per category.
func (s *Service) PreviewSplits(paymentID string, req PreviewRequest) (*types.PaymentSplitsResponse, error) {
	state, err := s.loadPayment(paymentID)
	if err != nil {
		return nil, err
	}

	inputs := types.ToSplits(state.records)
	index := make(map[string]int, len(inputs))
	for i, in := range inputs {
		index[in.ID] = i
	}

	for _, p := range req.Splits {
		if p.SplitID == "" {
			if p.BrokerID == "" {
				return nil, response.NewValidationError("splits", "each entry needs a split_id or broker_id")
			}
			inputs = append(inputs, split.PaymentSplit{
				PaymentID:          paymentID,
				BrokerID:           p.BrokerID,
				OriginationPercent: p.OriginationPercent,
				SitePercent:        p.SitePercent,
				DealPercent:        p.DealPercent,
			})
			continue
		}

		i, ok := index[p.SplitID]
		if !ok {
			return nil, response.NewValidationError("splits", "split "+p.SplitID+" is not on this payment")
		}
		inputs[i].OriginationPercent = p.OriginationPercent
		inputs[i].SitePercent = p.SitePercent
		inputs[i].DealPercent = p.DealPercent
	}

	result := s.compute(state, inputs, req.DealAmounts)
	return s.buildResponse(state, result, req.DealAmounts)
}

// RecalculateDeal recalculates and stores the splits of every payment on the
// deal, typically after its pools change
func (s *Service) RecalculateDeal(dealID string) error {
	paymentIDs, err := s.db.GetDealPaymentIDs(dealID)
	if err != nil {
		return fmt.Errorf("failed to fetch deal payments: %w", err)
	}

	for _, paymentID := range paymentIDs {
		if err := s.recalculatePayment(paymentID); err != nil {
			return fmt.Errorf("failed to recalculate payment %s: %w", paymentID, err)
		}
	}

	log.Info().
		Str("deal_id", dealID).
		Int("payments", len(paymentIDs)).
		Str("service", "commission").
		Msg("deal splits recalculated")
	return nil
}

func (s *Service) recalculatePayment(paymentID string) error {
	unlock := s.lockPayment(paymentID)
	defer unlock()

	state, err := s.loadPayment(paymentID)
	if err != nil {
		return err
	}
	_, err = s.recalculate(state)
	return err
}

func (s *Service) compute(state *paymentState, inputs []split.PaymentSplit, dealAmounts split.Pools) split.Result {
	return s.cache.Compute(inputs, dealAmounts, state.deal.Pools(), split.Value(state.payment.PaymentAmount))
}

// recalculate runs the calculator over the payment's current inputs and
// persists the derived amounts. Callers hold the payment lock.
func (s *Service) recalculate(state *paymentState) (*types.PaymentSplitsResponse, error) {
	logger := log.With().
		Str("payment_id", state.payment.PaymentID).
		Str("service", "commission").
		Logger()

	result := s.compute(state, types.ToSplits(state.records), split.Pools{})
	for i := range state.records {
		state.records[i].ApplyCalculated(result.Splits[i])
	}

	status := types.SplitStatusValid
	if !result.Validation.IsValid {
		status = types.SplitStatusInvalid
	}

	if err := s.db.SaveCalculatedSplits(state.payment.PaymentID, state.records, status); err != nil {
		logger.Error().Err(err).Msg("failed to save recalculated splits")
		return nil, fmt.Errorf("failed to save splits: %w", err)
	}
	state.payment.SplitStatus = status

	logger.Debug().
		Int("splits", len(state.records)).
		Bool("valid", result.Validation.IsValid).
		Msg("payment splits recalculated")

	return s.buildResponse(state, result, split.Pools{})
}

func (s *Service) buildResponse(state *paymentState, result split.Result, dealAmounts split.Pools) (*types.PaymentSplitsResponse, error) {
	ids := make([]string, 0, len(result.Splits))
	for _, sp := range result.Splits {
		ids = append(ids, sp.BrokerID)
	}
	names, err := s.brokers.LookupNames(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to look up brokers: %w", err)
	}

	amount := split.Value(state.payment.PaymentAmount)
	return &types.PaymentSplitsResponse{
		PaymentID:     state.payment.PaymentID,
		DealID:        state.payment.DealID,
		PaymentAmount: split.RoundCurrency(amount),
		Pools:         split.ResolvePools(dealAmounts, state.deal.Pools(), amount),
		Summary:       split.Summarize(result.Splits, names),
		Timestamp:     time.Now(),
	}, nil
}

// GinHandlers contains HTTP handlers for split editing endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

func (h *GinHandlers) GetPaymentSplitsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		splits, err := h.service.GetPaymentSplits(c.Param("payment_id"))
		response.Handle(c, splits, err)
	}
}

func (h *GinHandlers) AddBrokerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AddBrokerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		splits, err := h.service.AddBroker(c.Param("payment_id"), req)
		if errors.Is(err, ErrDuplicateSplit) {
			response.Conflict(c, err.Error())
			return
		}
		response.Handle(c, splits, err)
	}
}

func (h *GinHandlers) UpdateSplitHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SplitPercents
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		splits, err := h.service.UpdateSplit(c.Param("split_id"), req)
		response.Handle(c, splits, err)
	}
}

func (h *GinHandlers) RemoveSplitHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		splits, err := h.service.RemoveSplit(c.Param("split_id"))
		response.Handle(c, splits, err)
	}
}

func (h *GinHandlers) PreviewSplitsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PreviewRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		preview, err := h.service.PreviewSplits(c.Param("payment_id"), req)
		response.Handle(c, preview, err)
	}
}
