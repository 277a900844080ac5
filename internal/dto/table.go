package dto

import (
	"time"

	"github.com/Additional-Code/tableside/internal/entity"
	"github.com/Additional-Code/tableside/internal/repository/codec"
	tableservice "github.com/Additional-Code/tableside/internal/service/table"
)

// CloseRequest asks for a table's bill.
type CloseRequest struct {
	PaymentMethod entity.PaymentMethod `json:"paymentMethod" validate:"required"`
}

// TableResponse is the billing state of one table.
type TableResponse struct {
	TableID       entity.TableID       `json:"tableId"`
	Status        entity.TableStatus   `json:"status"`
	StatusLabel   string               `json:"statusLabel"`
	PaymentMethod entity.PaymentMethod `json:"paymentMethod,omitempty"`
	PaymentLabel  string               `json:"paymentLabel,omitempty"`
	Locked        bool                 `json:"locked"`
}

// NewTableResponse maps a session.
func NewTableResponse(s entity.TableSession) TableResponse {
	return TableResponse{
		TableID:       s.TableID,
		Status:        s.Status,
		StatusLabel:   s.Status.Label(),
		PaymentMethod: s.PaymentMethod,
		PaymentLabel:  s.PaymentMethod.Label(),
		Locked:        s.Locked(),
	}
}

// NewTableResponses maps a list of sessions.
func NewTableResponses(sessions []entity.TableSession) []TableResponse {
	out := make([]TableResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, NewTableResponse(s))
	}
	return out
}

// BillResponse is what a table's client screen shows.
type BillResponse struct {
	Table  TableResponse   `json:"table"`
	Orders []OrderResponse `json:"orders"`
	Total  codec.Decimal   `json:"total"`
}

// NewBillResponse maps a bill.
func NewBillResponse(b tableservice.Bill) BillResponse {
	return BillResponse{
		Table:  NewTableResponse(b.Session),
		Orders: NewOrderResponses(b.Orders),
		Total:  codec.NewDecimal(b.Total),
	}
}

// ReceiptLineResponse is one aggregated product on a receipt.
type ReceiptLineResponse struct {
	ProductID string        `json:"productId"`
	Name      string        `json:"name"`
	Quantity  int           `json:"quantity"`
	UnitPrice codec.Decimal `json:"unitPrice"`
	Total     codec.Decimal `json:"total"`
}

// ReceiptResponse is printable bill data.
type ReceiptResponse struct {
	TableID       entity.TableID        `json:"tableId"`
	PaymentMethod entity.PaymentMethod  `json:"paymentMethod,omitempty"`
	PaymentLabel  string                `json:"paymentLabel,omitempty"`
	Lines         []ReceiptLineResponse `json:"lines"`
	Total         codec.Decimal         `json:"total"`
	GeneratedAt   time.Time             `json:"generatedAt"`
}

// NewReceiptResponse maps a receipt.
func NewReceiptResponse(r tableservice.Receipt) ReceiptResponse {
	lines := make([]ReceiptLineResponse, 0, len(r.Lines))
	for _, l := range r.Lines {
		lines = append(lines, ReceiptLineResponse{
			ProductID: l.ProductID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: codec.NewDecimal(l.UnitPrice),
			Total:     codec.NewDecimal(l.Total),
		})
	}
	return ReceiptResponse{
		TableID:       r.TableID,
		PaymentMethod: r.PaymentMethod,
		PaymentLabel:  r.PaymentMethod.Label(),
		Lines:         lines,
		Total:         codec.NewDecimal(r.Total),
		GeneratedAt:   r.GeneratedAt,
	}
}
