package broker

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/klear-commissions/internal/types"
	"github.com/ksred/klear-commissions/pkg/response"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var (
	ErrBrokerNotFound  = fmt.Errorf("broker %w", response.ErrNotFound)
	ErrDuplicateBroker = errors.New("a broker with this email already exists")
)

// Service manages brokers and resolves their display names
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// CreateBrokerRequest is the body of POST /brokers
type CreateBrokerRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email"`
}

// CreateBroker registers a broker. Emails, when given, must be unique.
func (s *Service) CreateBroker(req CreateBrokerRequest) (*types.Broker, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, response.NewValidationError("name", "is required")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, response.NewValidationError("email", "is not a valid address")
		}
		existing, err := s.db.GetBrokerByEmail(email)
		if err != nil {
			return nil, fmt.Errorf("failed to check broker email: %w", err)
		}
		if existing != nil {
			return nil, ErrDuplicateBroker
		}
	}

	broker := &types.Broker{
		BrokerID:  "BRK_" + uuid.New().String(),
		Name:      name,
		Email:     email,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.db.CreateBroker(broker); err != nil {
		return nil, fmt.Errorf("failed to create broker: %w", err)
	}

	log.Info().
		Str("broker_id", broker.BrokerID).
		Str("service", "broker").
		Msg("broker created")

	return broker, nil
}

// GetBroker retrieves a broker by ID
func (s *Service) GetBroker(brokerID string) (*types.Broker, error) {
	broker, err := s.db.GetBroker(brokerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBrokerNotFound
	}
	return broker, err
}

// ListBrokers returns every broker as an {id, name} pair, sorted by name
func (s *Service) ListBrokers() ([]types.BrokerName, error) {
	brokers, err := s.db.ListBrokers()
	if err != nil {
		return nil, fmt.Errorf("failed to list brokers: %w", err)
	}

	names := make([]types.BrokerName, 0, len(brokers))
	for _, b := range brokers {
		names = append(names, types.BrokerName{ID: b.BrokerID, Name: b.Name})
	}
	return names, nil
}

// LookupNames maps broker IDs to names for labelling split rows. Unknown IDs
// are left out of the map.
func (s *Service) LookupNames(brokerIDs []string) (map[string]string, error) {
	brokers, err := s.db.GetBrokersByIDs(brokerIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to look up broker names: %w", err)
	}

	names := make(map[string]string, len(brokers))
	for _, b := range brokers {
		names[b.BrokerID] = b.Name
	}
	return names, nil
}

// GinHandlers contains HTTP handlers for broker endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

func (h *GinHandlers) CreateBrokerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateBrokerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		broker, err := h.service.CreateBroker(req)
		if errors.Is(err, ErrDuplicateBroker) {
			response.Conflict(c, err.Error())
			return
		}
		response.Handle(c, broker, err)
	}
}

func (h *GinHandlers) ListBrokersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		brokers, err := h.service.ListBrokers()
		response.Handle(c, brokers, err)
	}
}
