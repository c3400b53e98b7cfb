package http

import (
	"go.uber.org/fx"

	customertransport "github.com/Additional-Code/loom/internal/transport/http/customer"
	inspectiontransport "github.com/Additional-Code/loom/internal/transport/http/inspection"
	salesordertransport "github.com/Additional-Code/loom/internal/transport/http/salesorder"
	sampletransport "github.com/Additional-Code/loom/internal/transport/http/sample"
	systemtransport "github.com/Additional-Code/loom/internal/transport/http/system"
	workordertransport "github.com/Additional-Code/loom/internal/transport/http/workorder"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	customertransport.Module,
	salesordertransport.Module,
	sampletransport.Module,
	workordertransport.Module,
	inspectiontransport.Module,
	systemtransport.Module,
)
