package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"marketplace/internal/models"
	"marketplace/internal/util"

	"github.com/gin-gonic/gin"
)

const (
	ctxUserIDKey = "user_id"
	ctxRoleKey   = "user_role"
)

// identityMiddleware reads the caller identity forwarded by the gateway.
// Requests without a numeric user id are rejected before any handler runs.
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
		if err != nil || userID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing or invalid X-User-ID header",
			})
			return
		}

		role := models.Role(c.GetHeader("X-User-Role"))
		switch role {
		case models.RoleBuyer, models.RoleSeller, models.RoleSupplier:
		default:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing or invalid X-User-Role header",
			})
			return
		}

		c.Set(ctxUserIDKey, userID)
		c.Set(ctxRoleKey, role)
		c.Next()
	}
}

// requireRole rejects callers whose forwarded role does not match.
func requireRole(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.MustGet(ctxRoleKey).(models.Role) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Insufficient role for this resource",
			})
			return
		}
		c.Next()
	}
}

func currentUserID(c *gin.Context) int64 {
	return c.MustGet(ctxUserIDKey).(int64)
}

// respondError maps service errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	var validation *models.ValidationError
	var transition *models.InvalidTransitionError

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Error()})
	case errors.Is(err, models.ErrEmptyCart):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cart is empty"})
	case errors.Is(err, models.ErrInvalidSignature):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid webhook signature"})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Resource not found"})
	case errors.As(err, &transition):
		c.JSON(http.StatusConflict, gin.H{"error": transition.Error()})
	case errors.Is(err, models.ErrOrderExists):
		c.JSON(http.StatusConflict, gin.H{"error": "Order already exists"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal server error",
			"details": err.Error(),
		})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
