package inspection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/loom/internal/database"
	"github.com/Additional-Code/loom/internal/entity"
	"github.com/Additional-Code/loom/internal/events"
	repo "github.com/Additional-Code/loom/internal/repository/inspection"
	workorderrepo "github.com/Additional-Code/loom/internal/repository/workorder"
	"github.com/Additional-Code/loom/internal/service/transition"
	"github.com/Additional-Code/loom/internal/storage"
	"github.com/Additional-Code/loom/internal/workflow"
	"github.com/Additional-Code/loom/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/loom/service/inspection")

// MaxReportSize bounds uploaded report files.
const MaxReportSize = 20 << 20

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Input carries the fields of a new inspection.
type Input struct {
	SampleSize  int
	DefectCount int
	Result      string
	Notes       string
	InspectedAt *time.Time
}

// Report is an uploaded report file.
type Report struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Service records quality-control inspections against work orders.
type Service struct {
	conns      *database.Connections
	repo       *repo.Repository
	workOrders *workorderrepo.Repository
	store      storage.Store
	engine     *transition.Engine
	events     *events.Dispatcher
	logger     *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Conns      *database.Connections
	Repository *repo.Repository
	WorkOrders *workorderrepo.Repository
	Store      storage.Store
	Engine     *transition.Engine
	Events     *events.Dispatcher
	Logger     *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		conns:      p.Conns,
		repo:       p.Repository,
		workOrders: p.WorkOrders,
		store:      p.Store,
		engine:     p.Engine,
		events:     p.Events,
		logger:     p.Logger,
	}
}

// Create records an inspection for a work order in quality control. The
// acting user is stored as the inspector.
func (s *Service) Create(ctx context.Context, workOrderID, actor string, in Input) (*entity.Inspection, error) {
	ctx, span := serviceTracer.Start(ctx, "InspectionService.Create", trace.WithAttributes(attribute.String("work_order.id", workOrderID)))
	defer span.End()

	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, errorbank.Validation("actor is required")
	}
	if err := validate(in); err != nil {
		return nil, err
	}

	now := s.engine.Now()
	inspectedAt := now
	if in.InspectedAt != nil {
		inspectedAt = in.InspectedAt.UTC()
	}
	qc := &entity.Inspection{
		ID:          entity.NewID(),
		Number:      entity.NewNumber(entity.PrefixInspection, now),
		WorkOrderID: workOrderID,
		Inspector:   actor,
		SampleSize:  in.SampleSize,
		DefectCount: in.DefectCount,
		Result:      strings.TrimSpace(in.Result),
		Notes:       in.Notes,
		InspectedAt: inspectedAt,
		CreatedAt:   now,
	}

	err := s.conns.RunInTx(ctx, func(ctx context.Context) error {
		wo, err := s.workOrders.GetByID(ctx, workOrderID)
		if err != nil {
			if errors.Is(err, workorderrepo.ErrNotFound) {
				return errorbank.NotFound("Work order not found")
			}
			return errorbank.Internal("failed to load work order", errorbank.WithCause(err))
		}
		if wo.Status != string(workflow.QualityControl) {
			return errorbank.Validation(
				fmt.Sprintf("Inspections can only be recorded while the work order is in %s", workflow.QualityControl),
				errorbank.WithDetail("status", wo.Status),
			)
		}
		if err := s.repo.Create(ctx, qc); err != nil {
			return errorbank.Internal("failed to create inspection", errorbank.WithCause(err))
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return nil, err
	}

	s.logger.Info("inspection recorded",
		zap.String("inspection", qc.Number),
		zap.String("work_order_id", workOrderID),
		zap.String("result", qc.Result),
	)
	s.events.Dispatch(ctx, events.ChangeEvent{
		Action:     events.ActionCreated,
		EntityType: events.EntityInspection,
		EntityID:   qc.ID,
		Number:     qc.Number,
		Status:     qc.Result,
		Actor:      actor,
		OccurredAt: now,
	})
	return s.Get(ctx, qc.ID)
}

// Get returns one inspection with its work order.
func (s *Service) Get(ctx context.Context, id string) (*entity.Inspection, error) {
	qc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("Inspection not found")
		}
		return nil, errorbank.Internal("failed to load inspection", errorbank.WithCause(err))
	}
	return qc, nil
}

// List returns a filtered page of inspections and the total count.
func (s *Service) List(ctx context.Context, f repo.Filter) ([]*entity.Inspection, int, error) {
	if f.Result != "" && !entity.ValidInspectionResult(f.Result) {
		return nil, 0, errorbank.Validation(fmt.Sprintf("Invalid result: %s", f.Result))
	}
	rows, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, 0, errorbank.Internal("failed to list inspections", errorbank.WithCause(err))
	}
	return rows, total, nil
}

// AttachReport stores a report file and links it to the inspection,
// replacing any earlier report.
func (s *Service) AttachReport(ctx context.Context, id, actor string, rep Report) (*entity.Inspection, error) {
	ctx, span := serviceTracer.Start(ctx, "InspectionService.AttachReport", trace.WithAttributes(attribute.String("inspection.id", id)))
	defer span.End()

	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, errorbank.Validation("actor is required")
	}
	if rep.Body == nil || rep.Size <= 0 {
		return nil, errorbank.Validation("report file is required", errorbank.WithDetail("field", "file"))
	}
	if rep.Size > MaxReportSize {
		return nil, errorbank.Validation("report file is too large", errorbank.WithDetail("maxBytes", MaxReportSize))
	}

	qc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	key := reportKey(qc, rep.Filename)
	contentType := rep.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := s.store.Put(ctx, key, rep.Body, rep.Size, contentType); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
		return nil, errorbank.Internal("failed to store report", errorbank.WithCause(err))
	}
	if err := s.repo.SetReportKey(ctx, id, key); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("Inspection not found")
		}
		return nil, errorbank.Internal("failed to link report", errorbank.WithCause(err))
	}

	s.events.Dispatch(ctx, events.ChangeEvent{
		Action:     events.ActionReportAttached,
		EntityType: events.EntityInspection,
		EntityID:   qc.ID,
		Number:     qc.Number,
		Status:     qc.Result,
		Actor:      actor,
		OccurredAt: s.engine.Now(),
	})
	return s.Get(ctx, id)
}

// OpenReport streams the stored report of an inspection. The caller closes
// the returned reader.
func (s *Service) OpenReport(ctx context.Context, id string) (io.ReadCloser, storage.Object, error) {
	qc, err := s.Get(ctx, id)
	if err != nil {
		return nil, storage.Object{}, err
	}
	if qc.ReportKey == nil {
		return nil, storage.Object{}, errorbank.NotFound("Inspection has no report")
	}
	rc, obj, err := s.store.Open(ctx, *qc.ReportKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, storage.Object{}, errorbank.NotFound("Report file not found")
		}
		return nil, storage.Object{}, errorbank.Internal("failed to open report", errorbank.WithCause(err))
	}
	return rc, obj, nil
}

func validate(in Input) error {
	if in.SampleSize <= 0 {
		return errorbank.Validation("sampleSize must be greater than zero", errorbank.WithDetail("field", "sampleSize"))
	}
	if in.DefectCount < 0 || in.DefectCount > in.SampleSize {
		return errorbank.Validation("defectCount must be between 0 and sampleSize", errorbank.WithDetail("field", "defectCount"))
	}
	if !entity.ValidInspectionResult(strings.TrimSpace(in.Result)) {
		return errorbank.Validation(
			fmt.Sprintf("Invalid result: %s", in.Result),
			errorbank.WithDetail("allowed", []string{entity.InspectionPassed, entity.InspectionFailed, entity.InspectionConditional}),
		)
	}
	return nil
}

func reportKey(qc *entity.Inspection, filename string) string {
	name := unsafeName.ReplaceAllString(path.Base(strings.TrimSpace(filename)), "_")
	if name == "" || name == "." || name == "_" {
		name = "report"
	}
	return path.Join("inspections", qc.Number, name)
}
