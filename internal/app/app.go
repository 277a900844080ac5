package app

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/tableside/internal/backend"
	"github.com/Additional-Code/tableside/internal/cache"
	"github.com/Additional-Code/tableside/internal/collaborator/qrcode"
	"github.com/Additional-Code/tableside/internal/collaborator/textgen"
	"github.com/Additional-Code/tableside/internal/config"
	"github.com/Additional-Code/tableside/internal/logger"
	"github.com/Additional-Code/tableside/internal/messaging"
	"github.com/Additional-Code/tableside/internal/observability"
	repositoryhistory "github.com/Additional-Code/tableside/internal/repository/history"
	repositoryorder "github.com/Additional-Code/tableside/internal/repository/order"
	repositoryproduct "github.com/Additional-Code/tableside/internal/repository/product"
	repositorytable "github.com/Additional-Code/tableside/internal/repository/table"
	"github.com/Additional-Code/tableside/internal/seeder"
	grpcserver "github.com/Additional-Code/tableside/internal/server/grpc"
	httpserver "github.com/Additional-Code/tableside/internal/server/http"
	servicecatalog "github.com/Additional-Code/tableside/internal/service/catalog"
	serviceorder "github.com/Additional-Code/tableside/internal/service/order"
	servicereport "github.com/Additional-Code/tableside/internal/service/report"
	servicetable "github.com/Additional-Code/tableside/internal/service/table"
	transporthttp "github.com/Additional-Code/tableside/internal/transport/http"
	"github.com/Additional-Code/tableside/internal/worker"
	workerorder "github.com/Additional-Code/tableside/internal/worker/order"
	workertable "github.com/Additional-Code/tableside/internal/worker/table"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	logger.Module,
	observability.Module,
	cache.Module,
	messaging.Module,
	backend.Module,
	repositoryproduct.Module,
	repositoryorder.Module,
	repositorytable.Module,
	repositoryhistory.Module,
	servicecatalog.Module,
	serviceorder.Module,
	servicetable.Module,
	textgen.Module,
	qrcode.Module,
	seeder.Module,
	fx.Invoke(reportBackend),
)

// HTTP wires the HTTP and gRPC servers, the order monitor and the handlers
// on top of the core modules.
var HTTP = fx.Options(
	Core,
	servicereport.Module,
	httpserver.Module,
	grpcserver.Module,
	transporthttp.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerorder.Module,
	workertable.Module,
)

// Module is the default application wiring (HTTP only).
var Module = HTTP

func reportBackend(obs *observability.Manager, info backend.Info) {
	obs.ReportBackend(info.Driver, string(info.Source), info.Remote)
}
