package middleware

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ksred/klear-commissions/pkg/response"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	visitors = make(map[string]*visitor)
	mu       sync.RWMutex

	// Configure limits per endpoint type
	authLimit  = rate.Limit(10.0 / 60.0)   // 10 requests per minute
	writeLimit = rate.Limit(300.0 / 60.0)  // 300 split/payment edits per minute
	readLimit  = rate.Limit(1000.0 / 60.0) // 1000 requests per minute
)

// Cleanup old visitors periodically
func init() {
	go cleanupVisitors()
}

// limitFor picks the rate for a route. Split editing is chatty (one request
// per keystroke in the editor) so it gets a burst larger than one.
func limitFor(method, path string) (rate.Limit, int) {
	switch {
	case strings.HasPrefix(path, "/api/v1/auth"):
		return authLimit, 1
	case strings.HasPrefix(path, "/api/v1/internal"):
		return rate.Inf, 1
	case method == "GET":
		return readLimit, 20
	case strings.HasPrefix(path, "/api/v1/"):
		return writeLimit, 10
	default:
		return rate.Inf, 1 // No limit for other paths
	}
}

func getLimiter(method, path, clientID string) *rate.Limiter {
	mu.Lock()
	defer mu.Unlock()

	key := clientID + ":" + method + ":" + path
	v, exists := visitors[key]

	if !exists {
		limit, burst := limitFor(method, path)
		v = &visitor{
			limiter:  rate.NewLimiter(limit, burst),
			lastSeen: time.Now(),
		}
		visitors[key] = v
	}

	v.lastSeen = time.Now()
	return v.limiter
}

func cleanupVisitors() {
	for {
		time.Sleep(time.Minute)

		mu.Lock()
		for key, v := range visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(visitors, key)
			}
		}
		mu.Unlock()
	}
}

func RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.GetString("clientID")
		if clientID == "" {
			clientID = c.ClientIP()
		}

		limiter := getLimiter(c.Request.Method, c.FullPath(), clientID)
		if !limiter.Allow() {
			response.BadRequest(c, "Rate limit exceeded. Please try again later.")
			c.Abort()
			return
		}

		c.Next()
	}
}

// JWTAuth verifies the bearer token and exposes its claims on the context
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := parseBearer(c, secret)
		if !ok {
			return
		}

		// Ensure required claims exist
		requiredClaims := []string{"client_id", "exp"}
		for _, claim := range requiredClaims {
			if _, exists := claims[claim]; !exists {
				response.Unauthorized(c, fmt.Sprintf("Missing required claim: %s", claim))
				c.Abort()
				return
			}
		}

		// Set individual claims in the context
		for key, value := range claims {
			c.Set(key, value)
		}

		// Also set the full claims object and explicit client_id
		c.Set("claims", claims)
		if clientID, ok := claims["client_id"].(string); ok {
			c.Set("clientID", clientID)
		}

		c.Next()
	}
}

// InternalAuth guards operational endpoints such as the split audit trigger.
// The token must carry the "internal" permission.
func InternalAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := parseBearer(c, secret)
		if !ok {
			return
		}

		clientID, ok := claims["client_id"].(string)
		if !ok {
			response.Unauthorized(c, "Invalid client ID in token")
			c.Abort()
			return
		}

		if !hasPermission(claims, "internal") {
			response.Forbidden(c, "Internal permission required")
			c.Abort()
			return
		}

		c.Set("clientID", clientID)
		c.Next()
	}
}

func parseBearer(c *gin.Context, secret string) (jwt.MapClaims, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		response.Unauthorized(c, "Authorization header required")
		c.Abort()
		return nil, false
	}

	bearerToken := strings.Split(authHeader, " ")
	if len(bearerToken) != 2 || strings.ToLower(bearerToken[0]) != "bearer" {
		response.Unauthorized(c, "Invalid authorization header format")
		c.Abort()
		return nil, false
	}

	token, err := jwt.Parse(bearerToken[1], func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		response.Unauthorized(c, "Invalid token")
		c.Abort()
		return nil, false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		response.Unauthorized(c, "Invalid token claims")
		c.Abort()
		return nil, false
	}

	return claims, true
}

func hasPermission(claims jwt.MapClaims, permission string) bool {
	permissions, ok := claims["permissions"].([]interface{})
	if !ok {
		return false
	}
	for _, p := range permissions {
		if p == permission {
			return true
		}
	}
	return false
}
