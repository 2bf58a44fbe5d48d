package api

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"marketplace/internal/models"
	"marketplace/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	cartService     *service.CartService
	checkoutService *service.CheckoutService
	orderService    *service.OrderService
	reconciler      *service.Reconciler
}

// NewHandler creates a new HTTP handler
func NewHandler(cart *service.CartService, checkout *service.CheckoutService, orders *service.OrderService, reconciler *service.Reconciler) *Handler {
	return &Handler{
		cartService:     cart,
		checkoutService: checkout,
		orderService:    orders,
		reconciler:      reconciler,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/webhooks/payments", h.paymentWebhook)

	v1 := router.Group("/api/v1", identityMiddleware())
	{
		cart := v1.Group("/cart", requireRole(models.RoleBuyer))
		{
			cart.GET("", h.listCart)
			cart.POST("/items", h.addCartItem)
			cart.PUT("/items/:id", h.updateCartItem)
			cart.DELETE("/items/:id", h.removeCartItem)
			cart.DELETE("", h.clearCart)
		}

		v1.POST("/checkout", requireRole(models.RoleBuyer), h.checkout)

		orders := v1.Group("/orders", requireRole(models.RoleBuyer))
		{
			orders.GET("", h.listBuyerOrders)
			orders.GET("/:id", h.getBuyerOrder)
		}

		seller := v1.Group("/seller", requireRole(models.RoleSeller))
		{
			seller.GET("/orders", h.listSellerOrders)
			seller.GET("/orders/:id", h.getSellerOrder)
			seller.PATCH("/orders/:id/status", h.updateSellerOrderStatus)
		}

		supplier := v1.Group("/supplier", requireRole(models.RoleSupplier))
		{
			supplier.GET("/orders", h.listAllOrders)
			supplier.GET("/orders/:id", h.getOrder)
			supplier.PATCH("/orders/:id/status", h.updateSupplierOrderStatus)
			supplier.POST("/orders/:id/approve", h.approveOrder)
			supplier.POST("/orders/:id/cancel", h.cancelOrder)
			supplier.GET("/analytics", h.getAnalytics)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

type addCartItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required"`
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req addCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	item, err := h.cartService.AddItem(c.Request.Context(), currentUserID(c), req.ProductID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

func (h *Handler) updateCartItem(c *gin.Context) {
	var req updateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	item, err := h.cartService.UpdateItem(c.Request.Context(), currentUserID(c), c.Param("id"), req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	if err := h.cartService.RemoveItem(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) clearCart(c *gin.Context) {
	if err := h.cartService.Clear(c.Request.Context(), currentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listCart(c *gin.Context) {
	items, err := h.cartService.List(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// checkout converts the buyer's cart into a pending order and returns the
// provider checkout URL.
func (h *Handler) checkout(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.checkoutService.Checkout(c.Request.Context(), currentUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) listBuyerOrders(c *gin.Context) {
	orders, err := h.orderService.ListBuyerOrders(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) getBuyerOrder(c *gin.Context) {
	order, err := h.orderService.GetBuyerOrder(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) listSellerOrders(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	orders, err := h.orderService.ListSellerOrders(c.Request.Context(), currentUserID(c), page, perPage)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) getSellerOrder(c *gin.Context) {
	order, err := h.orderService.GetSellerOrder(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type updateStatusRequest struct {
	Status          string  `json:"status" binding:"required"`
	ShippingAddress *string `json:"shipping_address,omitempty"`
	BillingAddress  *string `json:"billing_address,omitempty"`
}

func (h *Handler) updateSellerOrderStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	order, err := h.orderService.UpdateStatusAsSeller(c.Request.Context(), currentUserID(c), c.Param("id"), models.OrderStatus(req.Status))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) listAllOrders(c *gin.Context) {
	var status *models.OrderStatus
	if raw := c.Query("status"); raw != "" {
		s := models.OrderStatus(raw)
		status = &s
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	orders, err := h.orderService.ListAllOrders(c.Request.Context(), status, page, perPage)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "page": page, "per_page": perPage})
}

func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.orderService.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) updateSupplierOrderStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	var addr *service.AddressUpdate
	if req.ShippingAddress != nil || req.BillingAddress != nil {
		addr = &service.AddressUpdate{
			ShippingAddress: req.ShippingAddress,
			BillingAddress:  req.BillingAddress,
		}
	}

	order, err := h.orderService.UpdateStatusAsSupplier(c.Request.Context(), c.Param("id"), models.OrderStatus(req.Status), addr)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) approveOrder(c *gin.Context) {
	order, err := h.orderService.ApproveOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) cancelOrder(c *gin.Context) {
	order, err := h.orderService.CancelOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) getAnalytics(c *gin.Context) {
	analytics, err := h.orderService.GetAnalytics(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, analytics)
}

// paymentWebhook receives payment provider events. The raw body is needed for
// signature verification, so it is read before any JSON binding. A 5xx tells
// the provider to redeliver; duplicate deliveries are reported as ignored
// with 200.
func (h *Handler) paymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	result, err := h.reconciler.ProcessWebhook(c.Request.Context(), payload, c.GetHeader("webhook-signature"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
