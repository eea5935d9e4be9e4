package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"ticketing-service/internal/lifecycle"
	"ticketing-service/internal/models"
	"ticketing-service/internal/service"
	"ticketing-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const webhookSignatureHeader = "X-Webhook-Signature"

// Handler contains HTTP handlers
type Handler struct {
	events   *service.EventService
	tickets  *service.TicketService
	payments *service.PaymentService
	checkIns *service.CheckInService
	stores   *service.Stores
}

func NewHandler(
	events *service.EventService,
	tickets *service.TicketService,
	payments *service.PaymentService,
	checkIns *service.CheckInService,
	stores *service.Stores,
) *Handler {
	return &Handler{
		events:   events,
		tickets:  tickets,
		payments: payments,
		checkIns: checkIns,
		stores:   stores,
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
		v1.POST("/events", h.createEvent)
		v1.GET("/events", h.listEvents)
		v1.GET("/events/:id", h.getEvent)

		v1.POST("/tickets", h.purchaseTicket)
		v1.GET("/tickets/:id", h.getTicket)
		v1.POST("/tickets/:id/undo-checkin", h.undoCheckIn)
		v1.POST("/tickets/:id/refund", h.refundTicket)
		v1.POST("/tickets/:id/cancel", h.cancelTicket)
		v1.POST("/tickets/:id/transfer", h.transferTicket)

		v1.POST("/payments/verify", h.verifyCheckout)
		v1.POST("/payments/webhook", h.paymentWebhook)

		v1.POST("/checkin", h.checkIn)
		v1.GET("/checkin/verify", h.verifyTicket)
	}
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports degraded mode when the persistent store is down;
// the service keeps answering from the fallback store.
func (h *Handler) readinessCheck(c *gin.Context) {
	status := "ready"
	if !h.stores.PrimaryReachable(c.Request.Context()) {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) createEvent(c *gin.Context) {
	var req service.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	event, err := h.events.CreateEvent(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, eventResponse(event))
}

func (h *Handler) listEvents(c *gin.Context) {
	events, err := h.events.ListEvents(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]gin.H, 0, len(events))
	for i := range events {
		out = append(out, eventResponse(&events[i]))
	}
	c.JSON(http.StatusOK, gin.H{"events": out})
}

func (h *Handler) getEvent(c *gin.Context) {
	event, err := h.events.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, eventResponse(event))
}

func (h *Handler) purchaseTicket(c *gin.Context) {
	var req service.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.tickets.Purchase(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) getTicket(c *gin.Context) {
	ticket, err := h.tickets.GetTicket(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func (h *Handler) undoCheckIn(c *gin.Context) {
	ticket, err := h.tickets.UndoCheckIn(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Check-in undone", "ticket": ticket})
}

func (h *Handler) refundTicket(c *gin.Context) {
	ticket, err := h.tickets.Refund(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Ticket refunded", "ticket": ticket})
}

func (h *Handler) cancelTicket(c *gin.Context) {
	ticket, err := h.tickets.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Ticket cancelled", "ticket": ticket})
}

func (h *Handler) transferTicket(c *gin.Context) {
	var req service.HolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ticket, qr, err := h.tickets.Transfer(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Ticket transferred",
		"ticket":  ticket,
		"qr_data": qr,
	})
}

func (h *Handler) verifyCheckout(c *gin.Context) {
	var req service.VerifyCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.payments.VerifyCheckout(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// paymentWebhook needs the raw body; the signature covers the exact bytes
// the gateway sent.
func (h *Handler) paymentWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.payments.HandleWebhook(c.Request.Context(), body, c.GetHeader(webhookSignatureHeader))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) checkIn(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		checkInError(c, err)
		return
	}

	payload, err := service.ParseScanPayload(body)
	if err != nil {
		checkInError(c, err)
		return
	}

	result, err := h.checkIns.CheckIn(c.Request.Context(), payload)
	if err != nil {
		checkInError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) verifyTicket(c *gin.Context) {
	ticketID := firstQuery(c, "ticketId", "ticket_id")
	token := c.Query("token")
	eventID := firstQuery(c, "eventId", "event_id")

	result, err := h.checkIns.Verify(c.Request.Context(), ticketID, token, eventID)
	if err != nil {
		checkInError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func firstQuery(c *gin.Context, keys ...string) string {
	for _, k := range keys {
		if v := c.Query(k); v != "" {
			return v
		}
	}
	return ""
}

func eventResponse(e *models.Event) gin.H {
	return gin.H{
		"id":            e.ID,
		"name":          e.Name,
		"starts_at":     e.StartsAt,
		"venue":         e.Venue,
		"price":         e.Price,
		"price_display": e.PriceDisplay(),
		"capacity":      e.Capacity,
		"sold":          e.Sold,
		"sold_out":      e.SoldOut(),
		"created_at":    e.CreatedAt,
	}
}

// errorStatus maps service errors to an HTTP status and the message shown
// to the operator. Anything unrecognised is an internal error.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, "Invalid request"
	case errors.Is(err, service.ErrInvalidToken):
		return http.StatusForbidden, "Invalid ticket token"
	case errors.Is(err, service.ErrInvalidSignature):
		return http.StatusBadRequest, "Invalid payment signature"
	case errors.Is(err, service.ErrOrderMismatch):
		return http.StatusBadRequest, "Payment does not match this ticket"
	case errors.Is(err, service.ErrTicketNotFound):
		return http.StatusNotFound, "Ticket not found"
	case errors.Is(err, service.ErrEventNotFound):
		return http.StatusNotFound, "Event not found"
	case errors.Is(err, service.ErrSoldOut):
		return http.StatusConflict, "Event is sold out"
	case errors.Is(err, service.ErrConfirmationInFlight):
		return http.StatusConflict, "Payment confirmation already in progress"
	case errors.Is(err, service.ErrGatewayNotConfigured):
		return http.StatusServiceUnavailable, "Payment gateway not configured"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// writeError renders a failed request. Lifecycle refusals are decisions,
// not failures, and are answered with 200 and success=false.
func writeError(c *gin.Context, err error) {
	var rej *lifecycle.Rejection
	if errors.As(err, &rej) {
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"message": rej.Message(),
			"reason":  rej.Reason,
		})
		return
	}

	status, msg := errorStatus(err)
	body := gin.H{"error": msg}
	if status == http.StatusBadRequest {
		body["details"] = err.Error()
	}
	c.JSON(status, body)
}

// checkInError uses the scanner's response shape.
func checkInError(c *gin.Context, err error) {
	status, msg := errorStatus(err)
	c.JSON(status, gin.H{
		"success": false,
		"message": msg,
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
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
