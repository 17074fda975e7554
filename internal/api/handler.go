package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"bakery-orders/internal/auth"
	"bakery-orders/internal/models"
	"bakery-orders/internal/service"
	"bakery-orders/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ProductCatalog serves the public catalog reads
type ProductCatalog interface {
	ProductBySlug(ctx context.Context, slug string) (*models.Product, error)
	VariantStock(ctx context.Context, slug, color, size string) (int, error)
}

// Handler contains HTTP handlers
type Handler struct {
	orderService *service.OrderService
	reconciler   *service.PaymentReconciler
	catalog      ProductCatalog
	streamer     *AdminStreamer
	jwtService   *auth.JWTService
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orderService *service.OrderService,
	reconciler *service.PaymentReconciler,
	catalog ProductCatalog,
	streamer *AdminStreamer,
	jwtService *auth.JWTService,
) *Handler {
	return &Handler{
		orderService: orderService,
		reconciler:   reconciler,
		catalog:      catalog,
		streamer:     streamer,
		jwtService:   jwtService,
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

	// Payment provider callback, authenticated by signature, not JWT
	router.POST("/webhooks/stripe", h.paymentWebhook)

	// Public catalog reads, no JWT
	router.GET("/api/v1/products/:slug", h.getProduct)
	router.GET("/api/v1/products/:slug/stock", h.getVariantStock)

	v1 := router.Group("/api/v1")
	v1.Use(AuthRequired(h.jwtService))
	{
		v1.POST("/cart/validate", h.validateCart)
		v1.POST("/cart/refresh", h.refreshCart)

		v1.POST("/orders", h.createOrder)
		v1.GET("/orders/mine", h.myOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/orders/:id/status", h.getOrderStatus)

		admin := v1.Group("/admin")
		admin.Use(AdminRequired())
		{
			admin.GET("/orders", h.adminOrders)
			admin.GET("/orders/stream", h.streamer.Stream)
			admin.PUT("/orders/:id/deliver", h.markDelivered)
			admin.PUT("/orders/:id/viewed", h.markViewed)
		}
	}
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// createOrder handles order creation. Validation failures come back with
// success=false and a consolidated user-facing message; only system failures
// produce a 5xx.
func (h *Handler) createOrder(c *gin.Context) {
	claims, _ := GetClaims(c)

	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Invalid request body",
		})
		return
	}

	resp, err := h.orderService.CreateOrder(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to create order, please try again",
		})
		return
	}

	status := http.StatusOK
	if resp.Success {
		status = http.StatusCreated
	}
	c.JSON(status, resp)
}

func (h *Handler) getProduct(c *gin.Context) {
	product, err := h.catalog.ProductBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load product"})
		}
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) getVariantStock(c *gin.Context) {
	stock, err := h.catalog.VariantStock(c.Request.Context(),
		c.Param("slug"), c.Query("color"), c.Query("size"))
	if err != nil {
		if errors.Is(err, store.ErrProductNotFound) || errors.Is(err, store.ErrVariantNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Variant not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stock"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"countInStock": stock})
}

func (h *Handler) validateCart(c *gin.Context) {
	var cartBody models.Cart
	if err := c.ShouldBindJSON(&cartBody); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cart"})
		return
	}

	result, err := h.orderService.ValidateCart(c.Request.Context(), &cartBody)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Validation unavailable"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) refreshCart(c *gin.Context) {
	var cartBody models.Cart
	if err := c.ShouldBindJSON(&cartBody); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cart"})
		return
	}

	result, err := h.orderService.RefreshCart(c.Request.Context(), &cartBody)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Refresh unavailable"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) myOrders(c *gin.Context) {
	claims, _ := GetClaims(c)

	orders, err := h.orderService.GetMyOrders(c.Request.Context(), claims.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load orders"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) getOrder(c *gin.Context) {
	order, ok := h.loadOwnedOrder(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, order)
}

// getOrderStatus serves the checkout-success poll: a minimal read-only view
// of the payment state
func (h *Handler) getOrderStatus(c *gin.Context) {
	order, ok := h.loadOwnedOrder(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"_id":           order.ID,
		"isPaid":        order.IsPaid,
		"paidAt":        order.PaidAt,
		"paymentMethod": order.PaymentMethod,
	})
}

// loadOwnedOrder fetches the order and enforces owner-or-admin access,
// writing the error response itself when access is denied
func (h *Handler) loadOwnedOrder(c *gin.Context) (*models.Order, bool) {
	claims, _ := GetClaims(c)

	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return nil, false
	}

	order, err := h.orderService.GetOrderStatus(c.Request.Context(), orderID)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load order"})
		}
		return nil, false
	}

	if order.UserID != claims.UserID && !claims.IsAdmin() {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not your order"})
		return nil, false
	}
	return order, true
}

// paymentWebhook receives asynchronous provider notifications. Non-2xx
// responses trigger the provider's retry, so error classification matters:
// 400 for signature/structure problems, 404 for unknown orders, 500 for
// transient failures. Duplicates are a 200 no-op.
func (h *Handler) paymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable body"})
		return
	}

	sigHeader := c.GetHeader("Webhook-Signature")

	err = h.reconciler.HandleEvent(c.Request.Context(), payload, sigHeader)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"received": true})
	case errors.Is(err, service.ErrMissingSecret),
		errors.Is(err, service.ErrMissingSignature),
		errors.Is(err, service.ErrInvalidSignature),
		errors.Is(err, service.ErrMissingOrderID):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown order"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Processing failed"})
	}
}

func (h *Handler) adminOrders(c *gin.Context) {
	snapshot, err := h.orderService.AdminOrders(c.Request.Context(), parseAdminQuery(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load orders"})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (h *Handler) markDelivered(c *gin.Context) {
	h.adminOrderAction(c, h.orderService.MarkDelivered)
}

func (h *Handler) markViewed(c *gin.Context) {
	h.adminOrderAction(c, h.orderService.MarkViewed)
}

func (h *Handler) adminOrderAction(c *gin.Context, action func(ctx context.Context, orderID int64) error) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	if err := action(c.Request.Context(), orderID); err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Update failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func parseAdminQuery(c *gin.Context) store.AdminOrderQuery {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	orderID, _ := strconv.ParseInt(c.Query("orderId"), 10, 64)

	return store.AdminOrderQuery{
		Page:     page,
		PageSize: 20,
		OrderID:  orderID,
		SortBy:   c.DefaultQuery("sort", "createdAt"),
		SortDir:  c.DefaultQuery("order", "desc"),
	}
}
