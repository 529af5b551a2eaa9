package transport

import (
	"net/http"

	"github.com/ds124wfegd/travel-booking/internal/entity"
	"github.com/ds124wfegd/travel-booking/internal/service"
	"github.com/ds124wfegd/travel-booking/internal/transport/middleware"
	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	paymentService service.PaymentService
}

func NewPaymentHandler(paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

type CreatePaymentRequest struct {
	Method string `json:"method" binding:"required"`
}

func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	method, err := entity.ParsePaymentMethod(req.Method)
	if err != nil {
		respondError(c, err)
		return
	}

	payment, err := h.paymentService.CreatePayment(c.Request.Context(), middleware.Actor(c), c.Param("bookingId"), method)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, "Payment created", payment)
}

func (h *PaymentHandler) GetBookingPayments(c *gin.Context) {
	payments, err := h.paymentService.GetBookingPayments(c.Request.Context(), middleware.Actor(c), c.Param("bookingId"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Payments retrieved successfully",
		Data:    payments,
		Meta:    gin.H{"total": len(payments)},
	})
}

func (h *PaymentHandler) GetPayment(c *gin.Context) {
	payment, err := h.paymentService.GetPayment(c.Request.Context(), middleware.Actor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Payment retrieved successfully", payment)
}

func (h *PaymentHandler) ConfirmPayment(c *gin.Context) {
	payment, err := h.paymentService.ConfirmPayment(c.Request.Context(), middleware.Actor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Payment confirmed", payment)
}

func (h *PaymentHandler) CancelPayment(c *gin.Context) {
	payment, err := h.paymentService.CancelPayment(c.Request.Context(), middleware.Actor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Payment cancelled", payment)
}

func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	payment, err := h.paymentService.RefundPayment(c.Request.Context(), middleware.Actor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Payment refunded", payment)
}
