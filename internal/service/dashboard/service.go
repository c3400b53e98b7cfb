// Package dashboard builds the operational overview: live status counts,
// material and process summaries, and the recent activity feed.
package dashboard

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/loom/internal/cache"
	"github.com/Additional-Code/loom/internal/config"
	"github.com/Additional-Code/loom/internal/repository"
	repo "github.com/Additional-Code/loom/internal/repository/dashboard"
	historyrepo "github.com/Additional-Code/loom/internal/repository/history"
	samplerepo "github.com/Additional-Code/loom/internal/repository/sample"
	"github.com/Additional-Code/loom/internal/service/transition"
	"github.com/Additional-Code/loom/pkg/errorbank"
	"github.com/Additional-Code/loom/pkg/pagination"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/loom/service/dashboard")

// Dashboard is the full read projection served by GET /dashboard.
type Dashboard struct {
	Samples        []SampleSummary `json:"samples"`
	Overview       Overview        `json:"overview"`
	Production     Production      `json:"production"`
	RecentActivity []Activity      `json:"recentActivity"`
	GeneratedAt    time.Time       `json:"generatedAt"`
}

// SampleSummary is the list-row view of a sample request.
type SampleSummary struct {
	ID           string    `json:"id"`
	Number       string    `json:"number"`
	Name         string    `json:"name"`
	CustomerID   string    `json:"customerId"`
	CustomerName string    `json:"customerName"`
	Color        string    `json:"color"`
	Quantity     int       `json:"quantity"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Overview summarises sample requests.
type Overview struct {
	StatusCounts      map[string]int  `json:"statusCounts"`
	TotalSamples      int             `json:"totalSamples"`
	MaterialSummary   []MaterialTotal `json:"materialSummary"`
	ProcessStageUsage []StageUsage    `json:"processStageUsage"`
}

// MaterialTotal is the material requirement total of one category.
type MaterialTotal struct {
	Category      string          `json:"category"`
	Lines         int             `json:"lines"`
	TotalQuantity decimal.Decimal `json:"totalQuantity"`
}

// StageUsage is the number of samples planning a process stage.
type StageUsage struct {
	Stage   string `json:"stage"`
	Samples int    `json:"samples"`
}

// Production summarises work orders per pipeline stage.
type Production struct {
	StageCounts     map[string]int `json:"stageCounts"`
	TotalWorkOrders int            `json:"totalWorkOrders"`
}

// Activity is one status history row enriched with its entity's labels.
type Activity struct {
	ID             string    `json:"id"`
	EntityType     string    `json:"entityType"`
	EntityID       string    `json:"entityId"`
	Number         string    `json:"number"`
	Name           string    `json:"name"`
	PreviousStatus *string   `json:"previousStatus"`
	NewStatus      string    `json:"newStatus"`
	ChangedBy      string    `json:"changedBy"`
	ChangeReason   *string   `json:"changeReason"`
	ChangedAt      time.Time `json:"changedAt"`
}

// Service assembles and caches the dashboard projection.
type Service struct {
	repo    *repo.Repository
	samples *samplerepo.Repository
	history *historyrepo.Repository
	cache   cache.Store
	cfg     config.Dashboard
	logger  *zap.Logger
	now     func() time.Time
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	Samples    *samplerepo.Repository
	History    *historyrepo.Repository
	Cache      cache.Store
	Config     config.Config
	Logger     *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		repo:    p.Repository,
		samples: p.Samples,
		history: p.History,
		cache:   p.Cache,
		cfg:     p.Config.Dashboard,
		logger:  p.Logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the dashboard, served from cache when a fresh copy exists.
// The copy is keyed by the dashboard generation read before building, so a
// mutation committing mid-build leaves the result under a retired key.
func (s *Service) Get(ctx context.Context) (*Dashboard, error) {
	ctx, span := serviceTracer.Start(ctx, "DashboardService.Get")
	defer span.End()

	cacheable := s.cfg.CacheTTL > 0
	gen, err := cache.DashboardGeneration(ctx, s.cache)
	if err != nil {
		s.logger.Warn("dashboard generation read failed", zap.Error(err))
		cacheable = false
	}
	span.SetAttributes(attribute.Int64("cache.generation", gen))
	key := cache.DashboardKey(gen)

	if cacheable {
		var cached Dashboard
		err = cache.GetJSON(ctx, s.cache, key, &cached)
		switch {
		case err == nil:
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return &cached, nil
		case !errors.Is(err, cache.ErrCacheMiss):
			s.logger.Warn("dashboard cache read failed", zap.Error(err))
		}
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	d, err := s.Build(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build failed")
		return nil, err
	}
	if cacheable {
		if err := cache.SetJSON(ctx, s.cache, key, d, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("dashboard cache write failed", zap.Error(err))
		}
	}
	return d, nil
}

// Build computes the projection straight from the database.
func (s *Service) Build(ctx context.Context) (*Dashboard, error) {
	ctx, span := serviceTracer.Start(ctx, "DashboardService.Build")
	defer span.End()

	sampleCounts, err := s.repo.SampleStatusCounts(ctx)
	if err != nil {
		return nil, buildErr(err)
	}
	stageCounts, err := s.repo.WorkOrderStageCounts(ctx)
	if err != nil {
		return nil, buildErr(err)
	}
	materials, err := s.repo.MaterialSummary(ctx)
	if err != nil {
		return nil, buildErr(err)
	}
	stages, err := s.repo.ProcessStageUsage(ctx)
	if err != nil {
		return nil, buildErr(err)
	}
	rows, _, err := s.samples.List(ctx, repository.Filter{Page: pagination.New(1, s.cfg.SampleLimit)})
	if err != nil {
		return nil, buildErr(err)
	}
	activity, err := s.recentActivity(ctx)
	if err != nil {
		return nil, buildErr(err)
	}

	d := &Dashboard{
		Samples:        make([]SampleSummary, 0, len(rows)),
		RecentActivity: activity,
		GeneratedAt:    s.now(),
	}
	for _, sr := range rows {
		sum := SampleSummary{
			ID:         sr.ID,
			Number:     sr.Number,
			Name:       sr.Name,
			CustomerID: sr.CustomerID,
			Color:      sr.Color,
			Quantity:   sr.Quantity,
			Status:     sr.Status,
			CreatedAt:  sr.CreatedAt,
			UpdatedAt:  sr.UpdatedAt,
		}
		if sr.Customer != nil {
			sum.CustomerName = sr.Customer.Name
		}
		d.Samples = append(d.Samples, sum)
	}

	d.Overview.StatusCounts, d.Overview.TotalSamples = zeroFilled(transition.SampleRequest, sampleCounts)
	d.Production.StageCounts, d.Production.TotalWorkOrders = zeroFilled(transition.WorkOrder, stageCounts)

	d.Overview.MaterialSummary = make([]MaterialTotal, 0, len(materials))
	for _, m := range materials {
		d.Overview.MaterialSummary = append(d.Overview.MaterialSummary, MaterialTotal(m))
	}
	d.Overview.ProcessStageUsage = make([]StageUsage, 0, len(stages))
	for _, st := range stages {
		d.Overview.ProcessStageUsage = append(d.Overview.ProcessStageUsage, StageUsage(st))
	}
	return d, nil
}

func (s *Service) recentActivity(ctx context.Context) ([]Activity, error) {
	rows, err := s.history.Recent(ctx, s.cfg.RecentActivityLimit)
	if err != nil {
		return nil, err
	}

	ids := make(map[string][]string)
	for _, h := range rows {
		ids[h.EntityType] = append(ids[h.EntityType], h.EntityID)
	}
	labels := make(map[string]map[string]repo.Label, len(ids))
	for kind, list := range ids {
		byID, err := s.repo.Labels(ctx, kind, list)
		if err != nil {
			return nil, err
		}
		labels[kind] = byID
	}

	out := make([]Activity, 0, len(rows))
	for _, h := range rows {
		label := labels[h.EntityType][h.EntityID]
		out = append(out, Activity{
			ID:             h.ID,
			EntityType:     h.EntityType,
			EntityID:       h.EntityID,
			Number:         label.Number,
			Name:           label.Name,
			PreviousStatus: h.PreviousStatus,
			NewStatus:      h.NewStatus,
			ChangedBy:      h.ChangedBy,
			ChangeReason:   h.ChangeReason,
			ChangedAt:      h.ChangedAt,
		})
	}
	return out, nil
}

// zeroFilled reports every state of the subject's machine, including those
// with no entities, plus the overall total.
func zeroFilled(subj transition.Subject, counts map[string]int) (map[string]int, int) {
	out := make(map[string]int, len(counts))
	for _, st := range subj.Machine.States() {
		out[string(st)] = 0
	}
	total := 0
	for status, n := range counts {
		out[status] = n
		total += n
	}
	return out, total
}

func buildErr(err error) error {
	return errorbank.Internal("failed to build dashboard", errorbank.WithCause(err))
}
