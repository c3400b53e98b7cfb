package app

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/loom/internal/auth"
	"github.com/Additional-Code/loom/internal/cache"
	"github.com/Additional-Code/loom/internal/config"
	"github.com/Additional-Code/loom/internal/database"
	"github.com/Additional-Code/loom/internal/events"
	"github.com/Additional-Code/loom/internal/logger"
	"github.com/Additional-Code/loom/internal/messaging"
	"github.com/Additional-Code/loom/internal/observability"
	"github.com/Additional-Code/loom/internal/realtime"
	customerrepo "github.com/Additional-Code/loom/internal/repository/customer"
	dashboardrepo "github.com/Additional-Code/loom/internal/repository/dashboard"
	historyrepo "github.com/Additional-Code/loom/internal/repository/history"
	inspectionrepo "github.com/Additional-Code/loom/internal/repository/inspection"
	salesorderrepo "github.com/Additional-Code/loom/internal/repository/salesorder"
	samplerepo "github.com/Additional-Code/loom/internal/repository/sample"
	workorderrepo "github.com/Additional-Code/loom/internal/repository/workorder"
	grpcserver "github.com/Additional-Code/loom/internal/server/grpc"
	httpserver "github.com/Additional-Code/loom/internal/server/http"
	customerservice "github.com/Additional-Code/loom/internal/service/customer"
	dashboardservice "github.com/Additional-Code/loom/internal/service/dashboard"
	inspectionservice "github.com/Additional-Code/loom/internal/service/inspection"
	salesorderservice "github.com/Additional-Code/loom/internal/service/salesorder"
	sampleservice "github.com/Additional-Code/loom/internal/service/sample"
	"github.com/Additional-Code/loom/internal/service/transition"
	workorderservice "github.com/Additional-Code/loom/internal/service/workorder"
	"github.com/Additional-Code/loom/internal/storage"
	transporthttp "github.com/Additional-Code/loom/internal/transport/http"
	"github.com/Additional-Code/loom/internal/worker"
	"github.com/Additional-Code/loom/internal/worker/activity"
)

// Infra provides configuration, logging, telemetry and the backing stores.
var Infra = fx.Options(
	config.Module,
	logger.Module,
	observability.Module,
	cache.Module,
	database.Module,
	messaging.Module,
	storage.Module,
)

// Repositories provides every bun-backed repository.
var Repositories = fx.Options(
	customerrepo.Module,
	samplerepo.Module,
	salesorderrepo.Module,
	workorderrepo.Module,
	inspectionrepo.Module,
	historyrepo.Module,
	dashboardrepo.Module,
)

// Services provides the domain services and the status transition engine.
var Services = fx.Options(
	transition.Module,
	events.Module,
	customerservice.Module,
	sampleservice.Module,
	salesorderservice.Module,
	workorderservice.Module,
	inspectionservice.Module,
	dashboardservice.Module,
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	Infra,
	auth.Module,
	Repositories,
	Services,
)

// HTTP wires the HTTP and gRPC health servers on top of the core modules.
// The realtime hub only exists here, so change events reach websocket
// subscribers of this process.
var HTTP = fx.Options(
	Core,
	realtime.Module,
	httpserver.Module,
	grpcserver.Module,
	transporthttp.Module,
)

// Worker exposes background event consumption.
var Worker = fx.Options(
	Core,
	worker.Module,
	activity.Module,
)

// Module is the default application wiring (HTTP only).
var Module = HTTP
