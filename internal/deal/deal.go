package deal

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/klear-commissions/internal/auth"
	"github.com/ksred/klear-commissions/internal/split"
	"github.com/ksred/klear-commissions/internal/types"
	"github.com/ksred/klear-commissions/pkg/response"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var ErrDealNotFound = fmt.Errorf("deal %w", response.ErrNotFound)

// Recalculator recomputes stored split amounts after a deal's pools change
type Recalculator interface {
	RecalculateDeal(dealID string) error
}

// Service handles deal records and their category pools
type Service struct {
	db           *Database
	recalculator Recalculator
}

// NewService creates a deal service. recalculator may be nil, in which case
// pool updates leave stored split amounts untouched.
func NewService(gormDB *gorm.DB, recalculator Recalculator) *Service {
	return &Service{
		db:           NewDatabase(gormDB),
		recalculator: recalculator,
	}
}

// CreateDealRequest is the body of POST /deals
type CreateDealRequest struct {
	ClientID         string   `json:"client_id"`
	DealName         string   `json:"deal_name" binding:"required"`
	FeeUSD           float64  `json:"fee_usd"`
	OriginationUSD   *float64 `json:"origination_usd"`
	SiteUSD          *float64 `json:"site_usd"`
	DealUSD          *float64 `json:"deal_usd"`
	NumberOfPayments int      `json:"number_of_payments"`
	ReferralFeeUSD   *float64 `json:"referral_fee_usd"`
	HouseUSD         *float64 `json:"house_usd"`
}

// CreateDeal creates a new deal with idempotency support
// A repeated idempotency key returns the deal created the first time
func (s *Service) CreateDeal(req CreateDealRequest, idempotencyKey string) (*types.Deal, error) {
	logger := log.With().
		Str("idempotency_key", idempotencyKey).
		Str("service", "deal").
		Logger()

	record, err := s.db.GetIdempotencyRecord(idempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	if record != nil {
		logger.Info().Str("deal_id", record.ResourceID).Msg("returning deal for repeated idempotency key")
		return s.GetDeal(record.ResourceID)
	}
	// An expired record still holds the unique key
	if err := s.db.DeleteIdempotencyRecord(idempotencyKey); err != nil {
		return nil, fmt.Errorf("failed to clear expired idempotency key: %w", err)
	}

	if err := validateDeal(req); err != nil {
		return nil, err
	}

	numberOfPayments := req.NumberOfPayments
	if numberOfPayments <= 0 {
		numberOfPayments = 1
	}

	deal := &types.Deal{
		DealID:           "DEAL_" + uuid.New().String(),
		ClientID:         req.ClientID,
		DealName:         strings.TrimSpace(req.DealName),
		FeeUSD:           req.FeeUSD,
		OriginationUSD:   req.OriginationUSD,
		SiteUSD:          req.SiteUSD,
		DealUSD:          req.DealUSD,
		NumberOfPayments: numberOfPayments,
		ReferralFeeUSD:   req.ReferralFeeUSD,
		HouseUSD:         req.HouseUSD,
		Status:           types.DealStatusOpen,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}

	if err := s.db.CreateDealWithIdempotency(deal, idempotencyKey); err != nil {
		logger.Error().Err(err).Msg("failed to create deal")
		return nil, fmt.Errorf("failed to create deal: %w", err)
	}

	logger.Info().
		Str("deal_id", deal.DealID).
		Float64("fee_usd", deal.FeeUSD).
		Int("number_of_payments", deal.NumberOfPayments).
		Msg("deal created")

	return deal, nil
}

func validateDeal(req CreateDealRequest) error {
	if strings.TrimSpace(req.DealName) == "" {
		return response.NewValidationError("deal_name", "is required")
	}
	if req.FeeUSD < 0 || math.IsNaN(req.FeeUSD) || math.IsInf(req.FeeUSD, 0) {
		return response.NewValidationError("fee_usd", "must be a non-negative amount")
	}
	return nil
}

// GetDeal retrieves a deal by ID
func (s *Service) GetDeal(dealID string) (*types.Deal, error) {
	deal, err := s.db.GetDeal(dealID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDealNotFound
	}
	return deal, err
}

// GetClientDeals lists a client's deals, newest first
func (s *Service) GetClientDeals(clientID string) ([]types.Deal, error) {
	return s.db.GetClientDeals(clientID)
}

// UpdateDealPools replaces the deal's category pools and recalculates every
// stored split on the deal so derived amounts track the new pools
func (s *Service) UpdateDealPools(dealID string, pools split.Pools) (*types.Deal, error) {
	logger := log.With().
		Str("deal_id", dealID).
		Str("service", "deal").
		Logger()

	if err := s.db.UpdateDealPools(dealID, pools.OriginationUSD, pools.SiteUSD, pools.DealUSD); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDealNotFound
		}
		return nil, fmt.Errorf("failed to update deal pools: %w", err)
	}

	if s.recalculator != nil {
		if err := s.recalculator.RecalculateDeal(dealID); err != nil {
			logger.Error().Err(err).Msg("failed to recalculate splits after pool update")
			return nil, fmt.Errorf("failed to recalculate splits: %w", err)
		}
	}

	logger.Info().Msg("deal pools updated")
	return s.GetDeal(dealID)
}

// GinHandlers contains HTTP handlers for deal endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CreateDealHandler handles POST requests to create deals
// Requires an Idempotency-Key header
func (h *GinHandlers) CreateDealHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		idempotencyKey := c.GetHeader("Idempotency-Key")
		if idempotencyKey == "" {
			response.BadRequest(c, "Idempotency-Key header is required")
			return
		}

		var req CreateDealRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if req.ClientID == "" {
			if claims, exists := c.Get("claims"); exists {
				req.ClientID = auth.GetClientID(claims)
			}
		}

		deal, err := h.service.CreateDeal(req, idempotencyKey)
		response.Handle(c, deal, err)
	}
}

func (h *GinHandlers) GetDealHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		deal, err := h.service.GetDeal(c.Param("deal_id"))
		response.Handle(c, deal, err)
	}
}

func (h *GinHandlers) UpdateDealPoolsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var pools split.Pools
		if err := c.ShouldBindJSON(&pools); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		deal, err := h.service.UpdateDealPools(c.Param("deal_id"), pools)
		response.Handle(c, deal, err)
	}
}

// GetClientDealsHandler lists the deals created by the authenticated client
func (h *GinHandlers) GetClientDealsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.GetString("clientID")
		if clientID == "" {
			response.BadRequest(c, "client ID is required")
			return
		}

		deals, err := h.service.GetClientDeals(clientID)
		response.Handle(c, deals, err)
	}
}
