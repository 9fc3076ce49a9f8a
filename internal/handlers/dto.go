package handlers

import (
	"time"

	"github.com/google/uuid"
	"github.com/hezron-sketch/cafe-backend/internal/domain"
)

type CreateOrderRequest struct {
	Items           []OrderItemRequest `json:"items"`
	ServiceType     string             `json:"service_type"`
	DeliveryAddress string             `json:"delivery_address"`
	PaymentMethod   string             `json:"payment_method"`
	MpesaPhone      string             `json:"mpesa_phone"`
	PromoCode       string             `json:"promo_code"`
	IdempotencyKey  string             `json:"idempotency_key"`
}

type OrderItemRequest struct {
	MenuItemID string  `json:"menu_item_id"`
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
	Quantity   int     `json:"quantity"`
	Note       string  `json:"note"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

type RateOrderRequest struct {
	Rating int    `json:"rating"`
	Review string `json:"review"`
}

type AssignOrderRequest struct {
	StaffID string `json:"staff_id"`
}

// ToDomain drops any client-sent totals; the server prices the order.
func (r CreateOrderRequest) ToDomain(ownerID string) domain.OrderRequest {
	items := make([]domain.OrderItem, len(r.Items))
	for i, item := range r.Items {
		items[i] = domain.OrderItem{
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			Price:      item.Price,
			Quantity:   item.Quantity,
			Note:       item.Note,
		}
	}
	return domain.OrderRequest{
		OwnerID:         ownerID,
		Items:           items,
		ServiceType:     domain.ServiceType(r.ServiceType),
		DeliveryAddress: r.DeliveryAddress,
		PaymentMethod:   domain.PaymentMethod(r.PaymentMethod),
		MpesaPhone:      r.MpesaPhone,
		PromoCode:       r.PromoCode,
		IdempotencyKey:  r.IdempotencyKey,
	}
}

type OrderResponse struct {
	ID                uuid.UUID           `json:"id"`
	OwnerID           string              `json:"owner_id"`
	Items             []OrderItemResponse `json:"items"`
	Subtotal          float64             `json:"subtotal"`
	DeliveryFee       float64             `json:"delivery_fee"`
	Discount          float64             `json:"discount"`
	TotalAmount       float64             `json:"total_amount"`
	PromoCode         string              `json:"promo_code,omitempty"`
	ServiceType       string              `json:"service_type"`
	DeliveryAddress   string              `json:"delivery_address,omitempty"`
	PaymentMethod     string              `json:"payment_method"`
	Status            string              `json:"status"`
	PaymentStatus     string              `json:"payment_status"`
	CheckoutRequestID string              `json:"checkout_request_id,omitempty"`
	TransactionID     string              `json:"transaction_id,omitempty"`
	RefundRequired    bool                `json:"refund_required"`
	AssignedTo        string              `json:"assigned_to,omitempty"`
	Rating            int                 `json:"rating,omitempty"`
	Review            string              `json:"review,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

type OrderItemResponse struct {
	MenuItemID string  `json:"menu_item_id"`
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
	Quantity   int     `json:"quantity"`
	Note       string  `json:"note,omitempty"`
}

type StatusChangeResponse struct {
	From  string    `json:"from"`
	To    string    `json:"to"`
	Actor string    `json:"actor"`
	Note  string    `json:"note,omitempty"`
	At    time.Time `json:"at"`
}

func mapOrder(order *domain.Order) OrderResponse {
	return OrderResponse{
		ID:                order.ID,
		OwnerID:           order.OwnerID,
		Items:             mapOrderItems(order.Items),
		Subtotal:          order.Subtotal,
		DeliveryFee:       order.DeliveryFee,
		Discount:          order.Discount,
		TotalAmount:       order.TotalAmount,
		PromoCode:         order.PromoCode,
		ServiceType:       string(order.ServiceType),
		DeliveryAddress:   order.DeliveryAddress,
		PaymentMethod:     string(order.PaymentMethod),
		Status:            string(order.Status),
		PaymentStatus:     string(order.PaymentStatus),
		CheckoutRequestID: order.CheckoutRequestID,
		TransactionID:     order.TransactionID,
		RefundRequired:    order.RefundRequired,
		AssignedTo:        order.AssignedTo,
		Rating:            order.Rating,
		Review:            order.Review,
		CreatedAt:         order.CreatedAt,
		UpdatedAt:         order.UpdatedAt,
	}
}

func mapOrders(orders []*domain.Order) []OrderResponse {
	responses := make([]OrderResponse, len(orders))
	for i, order := range orders {
		responses[i] = mapOrder(order)
	}
	return responses
}

func mapOrderItems(items []domain.OrderItem) []OrderItemResponse {
	responses := make([]OrderItemResponse, len(items))
	for i, item := range items {
		responses[i] = OrderItemResponse{
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			Price:      item.Price,
			Quantity:   item.Quantity,
			Note:       item.Note,
		}
	}
	return responses
}

func mapHistory(history []domain.StatusChange) []StatusChangeResponse {
	responses := make([]StatusChangeResponse, len(history))
	for i, change := range history {
		responses[i] = StatusChangeResponse{
			From:  string(change.From),
			To:    string(change.To),
			Actor: change.Actor,
			Note:  change.Note,
			At:    change.At,
		}
	}
	return responses
}
