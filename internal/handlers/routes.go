package handlers

import (
	"github.com/gofiber/fiber/v2"
)

func SetupRoutes(app *fiber.App, orderHandler *OrderHandler, paymentHandler *PaymentHandler, requireAuth fiber.Handler) {
	// API v1 routes
	api := app.Group("/api/v1")

	// Health check
	api.Get("/health", orderHandler.HealthCheck)

	// Daraja callback, authenticated by the unguessable checkout id only
	api.Post("/payments/mpesa/callback", paymentHandler.MpesaCallback)

	// Order routes
	orders := api.Group("/orders", requireAuth)
	orders.Post("/", orderHandler.CreateOrder)                         // POST /api/v1/orders
	orders.Get("/", orderHandler.GetMyOrders)                          // GET /api/v1/orders
	orders.Get("/queue", orderHandler.GetQueue)                        // GET /api/v1/orders/queue?status=
	orders.Get("/:id", orderHandler.GetOrderByID)                      // GET /api/v1/orders/:id
	orders.Get("/:id/history", orderHandler.GetOrderHistory)           // GET /api/v1/orders/:id/history
	orders.Get("/:id/payment-status", paymentHandler.GetPaymentStatus) // GET /api/v1/orders/:id/payment-status
	orders.Put("/:id/status", orderHandler.UpdateStatus)               // PUT /api/v1/orders/:id/status
	orders.Post("/:id/cancel", orderHandler.CancelOrder)               // POST /api/v1/orders/:id/cancel
	orders.Post("/:id/rate", orderHandler.RateOrder)                   // POST /api/v1/orders/:id/rate
	orders.Put("/:id/assign", orderHandler.AssignOrder)                // PUT /api/v1/orders/:id/assign

	// Route not found
	app.Use("*", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Route not found",
		})
	})
}
