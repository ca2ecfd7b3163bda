package middleware

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"liquidation-api/internal/auth"
	"liquidation-api/pkg/response"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	visitors = make(map[string]*visitor)
	mu       sync.RWMutex

	// Configure limits per endpoint type
	authLimit        = rate.Limit(10.0 / 60.0)   // 10 requests per minute
	liquidationLimit = rate.Limit(60.0 / 60.0)   // 60 requests per minute
	quoteLimit       = rate.Limit(1000.0 / 60.0) // 1000 requests per minute
)

// Cleanup old visitors periodically
func init() {
	go cleanupVisitors()
}

func getLimiter(path, clientIP string) *rate.Limiter {
	mu.Lock()
	defer mu.Unlock()

	key := clientIP + ":" + path
	v, exists := visitors[key]

	if !exists {
		var limit rate.Limit
		switch {
		case strings.HasPrefix(path, "/api/v1/auth"):
			limit = authLimit
		case strings.HasPrefix(path, "/api/v1/liquidations"):
			limit = liquidationLimit
		case strings.HasPrefix(path, "/api/v1/prices"), strings.HasPrefix(path, "/api/v1/estimate"):
			limit = quoteLimit
		default:
			limit = rate.Inf // No limit for other paths
		}

		v = &visitor{
			limiter:  rate.NewLimiter(limit, 1), // burst of 1
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
		for ip, v := range visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(visitors, ip)
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

		limiter := getLimiter(c.FullPath(), clientID)
		if !limiter.Allow() {
			response.BadRequest(c, "Rate limit exceeded. Please try again later.")
			c.Abort()
			return
		}

		c.Next()
	}
}

// JWTAuth validates bearer tokens on user-facing routes through the auth
// service and enforces the required permission for the route group.
func JWTAuth(authService *auth.Service, requiredPermission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := validateBearer(c, authService)
		if !ok {
			return
		}

		if requiredPermission != "" && !claims.HasPermission(requiredPermission) {
			response.Forbidden(c, fmt.Sprintf("Missing required permission: %s", requiredPermission))
			c.Abort()
			return
		}

		c.Set("claims", claims)
		c.Set("clientID", claims.ClientID)

		c.Next()
	}
}

// InternalAuth protects operator routes. Internal callers present the
// same bearer tokens; production deployments would additionally restrict
// these routes at the network layer.
func InternalAuth(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := validateBearer(c, authService)
		if !ok {
			return
		}

		c.Set("clientID", claims.ClientID)
		c.Next()
	}
}

func validateBearer(c *gin.Context, authService *auth.Service) (*auth.Claims, bool) {
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

	claims, err := authService.ValidateToken(bearerToken[1])
	if err != nil {
		response.Unauthorized(c, "Invalid token")
		c.Abort()
		return nil, false
	}

	if claims.ClientID == "" {
		response.Unauthorized(c, "Invalid client ID in token")
		c.Abort()
		return nil, false
	}

	return claims, true
}
