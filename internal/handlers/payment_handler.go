package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/hezron-sketch/cafe-backend/internal/callback"
	"github.com/hezron-sketch/cafe-backend/internal/service"
	sharedHTTP "github.com/hezron-sketch/cafe-backend/pkg/http"
)

type PaymentHandler struct {
	orderService *service.OrderService
	receiver     *callback.Receiver
}

func NewPaymentHandler(orderService *service.OrderService, receiver *callback.Receiver) *PaymentHandler {
	return &PaymentHandler{
		orderService: orderService,
		receiver:     receiver,
	}
}

// MpesaCallback always acknowledges; Daraja retries anything else and
// problems are already recorded by the receiver.
func (h *PaymentHandler) MpesaCallback(c *fiber.Ctx) error {
	body := append([]byte(nil), c.Body()...)
	_, _ = h.receiver.Handle(c.UserContext(), body)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"ResultCode": 0,
		"ResultDesc": "Accepted",
	})
}

func (h *PaymentHandler) GetPaymentStatus(c *fiber.Ctx) error {
	actor, orderID, err := actorAndOrderID(c)
	if err != nil {
		return respondError(c, err)
	}

	check, err := h.orderService.CheckPaymentStatus(c.UserContext(), orderID, actor)
	if err != nil {
		return respondError(c, err)
	}

	return sharedHTTP.SuccessResponse(c, "Payment status retrieved successfully", check)
}
