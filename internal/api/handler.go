package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/payment"
	"checkout-service/internal/service"
	"checkout-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// OrderService is the checkout surface served over HTTP
type OrderService interface {
	PlaceOrder(ctx context.Context, req *service.PlaceOrderRequest) (*service.PlaceOrderResponse, error)
	GetOrder(ctx context.Context, orderID int64) (*service.OrderDetails, error)
	GetOrderNotifications(ctx context.Context, orderID int64) ([]models.DeliveryStatus, error)
	RecordDeliveryEvent(ctx context.Context, jobID, status string) error
}

// CardValidator runs the payment simulation on a card number
type CardValidator interface {
	ValidateCard(cardNumber string) payment.Result
}

// ReadinessCheck reports whether a dependency is reachable
type ReadinessCheck func(ctx context.Context) error

// Handler contains HTTP handlers
type Handler struct {
	orderService OrderService
	cards        CardValidator
	checks       map[string]ReadinessCheck
	logger       *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(orderService OrderService, cards CardValidator, checks map[string]ReadinessCheck) *Handler {
	return &Handler{
		orderService: orderService,
		cards:        cards,
		checks:       checks,
		logger:       util.Named("http"),
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

	v1 := router.Group("/api/v1")
	{
		v1.POST("/checkout", h.checkout)
		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/orders/:id/notifications", h.getOrderNotifications)
		v1.POST("/payments/validate-card", h.validateCard)
		v1.POST("/notifications/:job_id/events", h.deliveryEvent)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck runs every dependency check with a short timeout
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(gin.H, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": results,
		"time":   time.Now().Unix(),
	})
}

// checkout handles order placement
func (h *Handler) checkout(c *gin.Context) {
	var req service.PlaceOrderRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   string(service.CodeInvalidRequest),
			"message": err.Error(),
		})
		return
	}
	req.IdempotencyKey = c.GetHeader("Idempotency-Key")

	resp, err := h.orderService.PlaceOrder(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := parseID(c)
	if !ok {
		return
	}

	details, err := h.orderService.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, details)
}

func (h *Handler) getOrderNotifications(c *gin.Context) {
	orderID, ok := parseID(c)
	if !ok {
		return
	}

	records, err := h.orderService.GetOrderNotifications(c.Request.Context(), orderID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if records == nil {
		records = []models.DeliveryStatus{}
	}

	c.JSON(http.StatusOK, gin.H{"notifications": records})
}

type validateCardRequest struct {
	CardNumber string `json:"card_number" binding:"required"`
}

func (h *Handler) validateCard(c *gin.Context) {
	var req validateCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   string(service.CodeInvalidRequest),
			"message": err.Error(),
		})
		return
	}

	result := h.cards.ValidateCard(req.CardNumber)
	c.JSON(http.StatusOK, gin.H{
		"is_valid":  result.IsValid,
		"bank_name": result.BankName,
	})
}

type deliveryEventRequest struct {
	Status string `json:"status" binding:"required"`
}

// deliveryEvent receives provider callbacks for sent confirmations
func (h *Handler) deliveryEvent(c *gin.Context) {
	var req deliveryEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   string(service.CodeInvalidRequest),
			"message": err.Error(),
		})
		return
	}

	if err := h.orderService.RecordDeliveryEvent(c.Request.Context(), c.Param("job_id"), req.Status); err != nil {
		h.writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   string(service.CodeInvalidRequest),
			"message": "invalid order id",
		})
		return 0, false
	}
	return id, true
}

// writeError maps checkout error codes to HTTP statuses. Internal errors
// are logged and reported without detail.
func (h *Handler) writeError(c *gin.Context, err error) {
	var ce *service.CheckoutError
	if !errors.As(err, &ce) {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "InternalError",
			"message": "internal server error",
		})
		return
	}

	c.JSON(statusFor(ce.Code), gin.H{
		"error":   string(ce.Code),
		"message": ce.Message,
	})
}

func statusFor(code service.ErrorCode) int {
	switch code {
	case service.CodeInvalidRequest:
		return http.StatusBadRequest
	case service.CodeProductNotFound, service.CodeGiftCardNotFound,
		service.CodeOrderNotFound, service.CodeNotificationNotFound:
		return http.StatusNotFound
	case service.CodeInsufficientStock, service.CodeInsufficientGiftCardBalance,
		service.CodeRequestInProgress:
		return http.StatusConflict
	case service.CodeInvalidCardDetails:
		return http.StatusUnprocessableEntity
	case service.CodePaymentProcessingFailed:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
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
