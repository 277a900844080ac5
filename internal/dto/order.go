package dto

import (
	"time"

	"github.com/Additional-Code/tableside/internal/entity"
	"github.com/Additional-Code/tableside/internal/repository/codec"
	orderservice "github.com/Additional-Code/tableside/internal/service/order"
)

// OrderLineRequest is one requested product.
type OrderLineRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

// CreateOrderRequest is the body of an order submission.
type CreateOrderRequest struct {
	TableID     entity.TableID     `json:"tableId" validate:"gt=0"`
	Items       []OrderLineRequest `json:"items" validate:"required,min=1,dive"`
	Observation string             `json:"observation" validate:"max=500"`
}

// Lines converts the request items for the order service.
func (r CreateOrderRequest) Lines() []orderservice.LineItem {
	out := make([]orderservice.LineItem, 0, len(r.Items))
	for _, it := range r.Items {
		out = append(out, orderservice.LineItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

// UpdateStatusRequest overwrites an order status.
type UpdateStatusRequest struct {
	Status entity.OrderStatus `json:"status" validate:"required"`
}

// OrderItemResponse is one snapshot line of an order.
type OrderItemResponse struct {
	ProductID string        `json:"productId"`
	Name      string        `json:"name"`
	Price     codec.Decimal `json:"price"`
	Quantity  int           `json:"quantity"`
	Subtotal  codec.Decimal `json:"subtotal"`
}

// OrderResponse represents an order as exposed via transport layers.
type OrderResponse struct {
	ID          string              `json:"id"`
	TableID     entity.TableID      `json:"tableId"`
	Items       []OrderItemResponse `json:"items"`
	Status      entity.OrderStatus  `json:"status"`
	StatusLabel string              `json:"statusLabel"`
	Timestamp   time.Time           `json:"timestamp"`
	Total       codec.Decimal       `json:"total"`
	Observation string              `json:"observation,omitempty"`
}

// ArchivedOrderResponse is a history record.
type ArchivedOrderResponse struct {
	OrderResponse
	ArchivedAt     *time.Time         `json:"archivedAt,omitempty"`
	PreviousStatus entity.OrderStatus `json:"previousStatus,omitempty"`
}

// NewOrderResponse maps an order.
func NewOrderResponse(o entity.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemResponse{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     codec.NewDecimal(it.Price),
			Quantity:  it.Quantity,
			Subtotal:  codec.NewDecimal(it.Subtotal()),
		})
	}
	return OrderResponse{
		ID:          o.ID,
		TableID:     o.TableID,
		Items:       items,
		Status:      o.Status,
		StatusLabel: o.Status.Label(),
		Timestamp:   o.Timestamp,
		Total:       codec.NewDecimal(o.Total),
		Observation: o.Observation,
	}
}

// NewOrderResponses maps a list of orders.
func NewOrderResponses(orders []entity.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, NewOrderResponse(o))
	}
	return out
}

// NewArchivedOrderResponses maps history records. Records archived by older
// clients have no archive time and omit it.
func NewArchivedOrderResponses(records []entity.ArchivedOrder) []ArchivedOrderResponse {
	out := make([]ArchivedOrderResponse, 0, len(records))
	for _, r := range records {
		resp := ArchivedOrderResponse{OrderResponse: NewOrderResponse(r.Order), PreviousStatus: r.PreviousStatus}
		if !r.ArchivedAt.IsZero() {
			at := r.ArchivedAt
			resp.ArchivedAt = &at
		}
		out = append(out, resp)
	}
	return out
}
