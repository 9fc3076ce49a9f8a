package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/hezron-sketch/cafe-backend/internal/auth"
	"github.com/hezron-sketch/cafe-backend/internal/domain"
	"github.com/hezron-sketch/cafe-backend/internal/service"
	sharedHTTP "github.com/hezron-sketch/cafe-backend/pkg/http"
)

const idempotencyHeader = "Idempotency-Key"

type OrderHandler struct {
	orderService *service.OrderService
}

func NewOrderHandler(orderService *service.OrderService) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
	}
}

func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	actor, ok := auth.ActorFrom(c)
	if !ok {
		return sharedHTTP.UnauthorizedResponse(c, "Authentication required")
	}

	var request CreateOrderRequest
	if err := c.BodyParser(&request); err != nil {
		return sharedHTTP.BadRequestResponse(c, "Invalid request body", nil)
	}
	if key := strings.TrimSpace(c.Get(idempotencyHeader)); key != "" {
		request.IdempotencyKey = key
	}

	order, err := h.orderService.CreateOrder(c.UserContext(), request.ToDomain(actor.ID))
	if err != nil {
		return respondError(c, err)
	}

	return sharedHTTP.CreatedResponse(c, "Order created successfully", mapOrder(order))
}

func (h *OrderHandler) GetOrderByID(c *fiber.Ctx) error {
	actor, orderID, err := actorAndOrderID(c)
	if err != nil {
		return respondError(c, err)
	}

	order, err := h.orderService.GetOrder(c.UserContext(), orderID, actor)
	if err != nil {
		return respondError(c, err)
	}

	return sharedHTTP.SuccessResponse(c, "Order retrieved successfully", mapOrder(order))
}

func (h *OrderHandler) GetOrderHistory(c *fiber.Ctx) error {
	actor, orderID, err := actorAndOrderID(c)
	if err != nil {
		return respondError(c, err)
	}

	history, err := h.orderService.GetOrderHistory(c.UserContext(), orderID, actor)
	if err != nil {
		return respondError(c, err)
	}

	return sharedHTTP.SuccessResponse(c, "Order history retrieved successfully", mapHistory(history))
}

func (h *OrderHandler) GetMyOrders(c *fiber.Ctx) error {
	actor, ok := auth.ActorFrom(c)
	if !ok {
		return sharedHTTP.UnauthorizedResponse(c, "Authentication required")
	}

	page := 1
	limit := 10
	if pageStr := c.Query("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	orders, total, err := h.orderService.ListOwnerOrders(c.UserContext(), actor, page, limit)
	if err != nil {
		return respondError(c, err)
	}

	return sharedHTTP.SuccessResponse(c, "Orders retrieved successfully", map[string]interface{}{
		"orders": mapOrders(orders),
		"pagination": map[string]interface{}{
			"page":     page,
			"limit":    limit,
			"total":    total,
			"has_more": page*limit < total,
		},
	})
}

func (h *OrderHandler) GetQueue(c *fiber.Ctx) error {
	actor, ok := auth.ActorFrom(c)
	if !ok {
		return sharedHTTP.UnauthorizedResponse(c, "Authentication required")
	}

	status := domain.OrderStatus(c.Query("status", string(domain.OrderStatusPending)))
	orders, err := h.orderService.ListOrdersByStatus(c.UserContext(), status, actor)
	if err != nil {
		return respondError(c, err)
	}

	return sharedHTTP.SuccessResponse(c, "Order queue retrieved successfully", mapOrders(orders))
}

func (h *OrderHandler) UpdateStatus(c *fiber.Ctx) error {
	actor, orderID, err := actorAndOrderID(c)
	if err != nil {
		return respondError(c, err)
	}

	var request UpdateStatusRequest
	if err := c.BodyParser(&request); err != nil {
		return sharedHTTP.BadRequestResponse(c, "Invalid request body", nil)
	}
	if request.Status == "" {
		return sharedHTTP.BadRequestResponse(c, "Status is required", nil)
	}

	order, err := h.orderService.TransitionStatus(c.UserContext(), orderID, domain.OrderStatus(request.Status), actor)
	if err != nil {
		return respondError(c, err)
	}

	return sharedHTTP.SuccessResponse(c, "Order status updated successfully", mapOrder(order))
}

func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	actor, orderID, err := actorAndOrderID(c)
	if err != nil {
		return respondError(c, err)
	}

	var request CancelOrderRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&request); err != nil {
			return sharedHTTP.BadRequestResponse(c, "Invalid request body", nil)
		}
	}

	order, err := h.orderService.CancelOrder(c.UserContext(), orderID, actor, request.Reason)
	if err != nil {
		return respondError(c, err)
	}

	return sharedHTTP.SuccessResponse(c, "Order cancelled successfully", mapOrder(order))
}

func (h *OrderHandler) RateOrder(c *fiber.Ctx) error {
	actor, orderID, err := actorAndOrderID(c)
	if err != nil {
		return respondError(c, err)
	}

	var request RateOrderRequest
	if err := c.BodyParser(&request); err != nil {
		return sharedHTTP.BadRequestResponse(c, "Rating must be an integer between 1 and 5", nil)
	}

	order, err := h.orderService.RateOrder(c.UserContext(), orderID, actor, request.Rating, request.Review)
	if err != nil {
		return respondError(c, err)
	}

	return sharedHTTP.SuccessResponse(c, "Order rated successfully", mapOrder(order))
}

func (h *OrderHandler) AssignOrder(c *fiber.Ctx) error {
	actor, orderID, err := actorAndOrderID(c)
	if err != nil {
		return respondError(c, err)
	}

	var request AssignOrderRequest
	if err := c.BodyParser(&request); err != nil {
		return sharedHTTP.BadRequestResponse(c, "Invalid request body", nil)
	}

	order, err := h.orderService.AssignOrder(c.UserContext(), orderID, request.StaffID, actor)
	if err != nil {
		return respondError(c, err)
	}

	return sharedHTTP.SuccessResponse(c, "Order assigned successfully", mapOrder(order))
}

func (h *OrderHandler) HealthCheck(c *fiber.Ctx) error {
	return sharedHTTP.SuccessResponse(c, "Cafe backend is healthy", map[string]interface{}{
		"service": "cafe-backend",
		"status":  "healthy",
	})
}

func actorAndOrderID(c *fiber.Ctx) (domain.Actor, uuid.UUID, error) {
	actor, ok := auth.ActorFrom(c)
	if !ok {
		return domain.Actor{}, uuid.Nil, domain.UnauthenticatedError("Authentication required")
	}
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return domain.Actor{}, uuid.Nil, domain.ValidationError("Invalid order ID")
	}
	return actor, orderID, nil
}
