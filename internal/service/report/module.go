package report

import (
	"time"

	"go.uber.org/fx"

	"github.com/Additional-Code/tableside/internal/collaborator/textgen"
	"github.com/Additional-Code/tableside/internal/config"
	orderservice "github.com/Additional-Code/tableside/internal/service/order"
)

// Providers supplies reporting without starting the order monitor.
var Providers = fx.Provide(
	NewService,
	NewHub,
	NewMonitor,
	func(c *textgen.Client) Narrator { return c },
	func(s *orderservice.Service) OrderStream { return s },
	fx.Annotate(
		func(cfg config.Config) time.Duration { return cfg.Cache.DefaultTTL },
		fx.ResultTags(`name:"report_cache_ttl"`),
	),
)

// Module provides reporting and runs the order monitor.
var Module = fx.Options(
	Providers,
	fx.Invoke(RegisterMonitor),
)
