package dto

import (
	"time"

	"github.com/Additional-Code/tableside/internal/repository/codec"
	"github.com/Additional-Code/tableside/internal/service/report"
)

// RangeQuery selects calendar days, both inclusive.
type RangeQuery struct {
	From  string `query:"from" validate:"required,datetime=2006-01-02"`
	To    string `query:"to" validate:"required,datetime=2006-01-02"`
	Limit int    `query:"limit" validate:"gte=0,lte=100"`
}

// StatsResponse is the financial summary of a range.
type StatsResponse struct {
	Start         time.Time     `json:"start"`
	End           time.Time     `json:"end"`
	TotalRevenue  codec.Decimal `json:"totalRevenue"`
	OrderCount    int           `json:"orderCount"`
	AverageTicket codec.Decimal `json:"averageTicket"`
}

// NewStatsResponse maps stats.
func NewStatsResponse(s report.FinancialStats) StatsResponse {
	return StatsResponse{
		Start:         s.Start,
		End:           s.End,
		TotalRevenue:  codec.NewDecimal(s.TotalRevenue),
		OrderCount:    s.OrderCount,
		AverageTicket: codec.NewDecimal(s.AverageTicket.Round(2)),
	}
}

// TopProductResponse is one best-seller.
type TopProductResponse struct {
	Name     string        `json:"name"`
	Quantity int           `json:"quantity"`
	Revenue  codec.Decimal `json:"revenue"`
}

// NewTopProductResponses maps the ranking.
func NewTopProductResponses(top []report.TopProduct) []TopProductResponse {
	out := make([]TopProductResponse, 0, len(top))
	for _, tp := range top {
		out = append(out, TopProductResponse{Name: tp.Name, Quantity: tp.Quantity, Revenue: codec.NewDecimal(tp.Revenue)})
	}
	return out
}

// NarrativeResponse carries the generated sales summary.
type NarrativeResponse struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Text  string    `json:"text"`
}
