package http

import (
	"go.uber.org/fx"

	alerttransport "github.com/Additional-Code/tableside/internal/transport/http/alert"
	diagnosticstransport "github.com/Additional-Code/tableside/internal/transport/http/diagnostics"
	ordertransport "github.com/Additional-Code/tableside/internal/transport/http/order"
	producttransport "github.com/Additional-Code/tableside/internal/transport/http/product"
	reporttransport "github.com/Additional-Code/tableside/internal/transport/http/report"
	settingstransport "github.com/Additional-Code/tableside/internal/transport/http/settings"
	tabletransport "github.com/Additional-Code/tableside/internal/transport/http/table"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	producttransport.Module,
	ordertransport.Module,
	tabletransport.Module,
	reporttransport.Module,
	alerttransport.Module,
	settingstransport.Module,
	diagnosticstransport.Module,
)
