package auth

import (
	"errors"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ksred/klear-commissions/pkg/response"
)

var (
	ErrInvalidCredentials = errors.New("invalid API credentials")
	ErrTokenGeneration    = errors.New("failed to generate token")
)

// Permissions carried in issued tokens
const (
	PermissionSplits   = "splits"
	PermissionInternal = "internal"
)

const tokenTTL = 24 * time.Hour

// Credentials represents the API authentication credentials
type Credentials struct {
	APIKey    string `json:"api_key" binding:"required"`
	APISecret string `json:"api_secret" binding:"required"`
}

// TokenResponse represents the JWT token response
type TokenResponse struct {
	Token      string    `json:"jwt_token"`
	Expiration time.Time `json:"expiration"`
}

// Claims represents the JWT claims structure
type Claims struct {
	jwt.RegisteredClaims
	ClientID    string   `json:"client_id"`
	Permissions []string `json:"permissions"`
}

type registration struct {
	secret      string
	permissions []string
}

// Service issues and validates API tokens
type Service struct {
	jwtSecret []byte

	mu             sync.RWMutex
	apiCredentials map[string]registration // keyed by API key
}

// NewService creates a new authentication service with the given JWT secret
func NewService(jwtSecret string) *Service {
	return &Service{
		jwtSecret:      []byte(jwtSecret),
		apiCredentials: make(map[string]registration),
	}
}

// GenerateToken generates a JWT token for valid API credentials
// The token carries the client ID and the permissions the key was registered with
func (s *Service) GenerateToken(creds Credentials) (*TokenResponse, error) {
	reg, ok := s.lookup(creds)
	if !ok {
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	expiration := now.Add(tokenTTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiration),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
		ClientID:    creds.APIKey,
		Permissions: reg.permissions,
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, ErrTokenGeneration
	}

	return &TokenResponse{
		Token:      tokenString,
		Expiration: expiration,
	}, nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

func (s *Service) lookup(creds Credentials) (registration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, exists := s.apiCredentials[creds.APIKey]
	return reg, exists && reg.secret == creds.APISecret
}

// RegisterAPICredentials registers an API key. Keys get PermissionSplits when
// no permissions are given.
func (s *Service) RegisterAPICredentials(apiKey, apiSecret string, permissions ...string) {
	if len(permissions) == 0 {
		permissions = []string{PermissionSplits}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiCredentials[apiKey] = registration{secret: apiSecret, permissions: permissions}
}

// GinHandlers contains HTTP handlers for authentication endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for authentication endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// GenerateTokenHandler handles POST requests to generate JWT tokens
func (h *GinHandlers) GenerateTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var creds Credentials
		if err := c.ShouldBindJSON(&creds); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		token, err := h.service.GenerateToken(creds)
		if errors.Is(err, ErrInvalidCredentials) {
			response.Unauthorized(c, err.Error())
			return
		}
		response.Handle(c, token, err)
	}
}

// GetClientID extracts the client ID from JWT claims set by the middleware
// Returns empty string if client ID is not found or invalid
func GetClientID(claims interface{}) string {
	if jwtClaims, ok := claims.(jwt.MapClaims); ok {
		if clientID, ok := jwtClaims["client_id"].(string); ok {
			return clientID
		}
	}
	return ""
}
