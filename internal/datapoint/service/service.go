// Package service records and corrects data points. Every write validates its
// source references, derives the numeric value, reconciles the metric's
// contradiction and restamps trust badges inside a single transaction.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"explorer/internal/changelog"
	cmodels "explorer/internal/contradiction/models"
	"explorer/internal/contradiction/resolver"
	"explorer/internal/datapoint/metrics"
	"explorer/internal/datapoint/models"
	"explorer/internal/figures"
	sourcemodels "explorer/internal/source/models"
	"explorer/internal/trust"
	"explorer/pkg/domain"
	dErrors "explorer/pkg/domain-errors"
	"explorer/pkg/platform/sentinel"
	pkgstrings "explorer/pkg/platform/strings"
	"explorer/pkg/requestcontext"
)

const table = "data_points"

type Store interface {
	Insert(ctx context.Context, dp *models.DataPoint) (domain.DataPointID, error)
	Update(ctx context.Context, dp *models.DataPoint) error
	SetBadge(ctx context.Context, id domain.DataPointID, badge trust.Badge) error
	FindByID(ctx context.Context, id domain.DataPointID) (*models.DataPoint, error)
	WithBothFigures(ctx context.Context, metric string) ([]*models.DataPoint, error)
	SubjectsByMetric(ctx context.Context, metric string) ([]trust.Subject, error)
}

// SourceLookup loads cited sources inside a write and keeps them from being
// retired until it commits.
type SourceLookup interface {
	ShareMany(ctx context.Context, ids []domain.SourceID) (map[domain.SourceID]*sourcemodels.Source, error)
}

// Contradictions keeps the per-metric contradiction in step with writes.
type Contradictions interface {
	Record(ctx context.Context, in resolver.Input) (*cmodels.Contradiction, error)
	Converged(ctx context.Context, metric string) error
	ForMetric(ctx context.Context, metric string) ([]*cmodels.Contradiction, error)
}

// Annotator gathers trust facts for data points.
type Annotator interface {
	Facts(ctx context.Context, subjects []trust.Subject) (map[domain.DataPointID]trust.Facts, error)
}

type Changelog interface {
	Append(ctx context.Context, entries ...changelog.Entry) error
	ForRecord(ctx context.Context, table string, id int64) ([]changelog.Entry, error)
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	store          Store
	sources        SourceLookup
	contradictions Contradictions
	annotator      Annotator
	changelog      Changelog
	tx             TxRunner
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

// Option configures optional collaborators.
type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(store Store, sources SourceLookup, contradictions Contradictions, annotator Annotator,
	changelog Changelog, tx TxRunner, opts ...Option) *Service {
	s := &Service{
		store:          store,
		sources:        sources,
		contradictions: contradictions,
		annotator:      annotator,
		changelog:      changelog,
		tx:             tx,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// View is a data point as presented: its live badge and the open
// contradiction for its metric, when there is one.
type View struct {
	DataPoint     *models.DataPoint
	Badge         trust.Badge
	Contradiction *cmodels.Contradiction
}

// Record validates and stores a new data point.
func (s *Service) Record(ctx context.Context, dp models.DataPoint) (*models.DataPoint, error) {
	if err := dp.Validate(); err != nil {
		s.metrics.IncrementWrite("record", "rejected")
		return nil, err
	}
	now := requestcontext.Now(ctx).UTC()
	dp.ID = 0
	dp.CreatedAt = now
	dp.UpdatedAt = now
	dp.TrustBadge = string(trust.BadgeUnverified)

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		sources, err := s.prepare(ctx, &dp)
		if err != nil {
			return err
		}
		id, err := s.store.Insert(ctx, &dp)
		if err != nil {
			return translateWrite(err)
		}
		dp.ID = id
		if err := s.changelog.Append(ctx, changelog.Entry{
			Table: table, RecordID: int64(id), ChangeType: changelog.ChangeCreate,
			Field: "value", NewValue: &dp.Value, ChangedAt: now,
		}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record changelog")
		}
		if err := s.reconcile(ctx, &dp, sources, dp.MetricName); err != nil {
			return err
		}
		return s.restamp(ctx, &dp, dp.MetricName)
	})
	if err != nil {
		s.metrics.IncrementWrite("record", outcome(err))
		return nil, err
	}
	s.metrics.IncrementWrite("record", "ok")
	if dp.Divergent() {
		s.metrics.IncrementContested()
	}
	s.logger.InfoContext(ctx, "data point recorded",
		"request_id", requestcontext.RequestID(ctx),
		"data_point_id", dp.ID,
		"metric_name", dp.MetricName,
		"verification_status", dp.VerificationStatus,
		"trust_badge", dp.TrustBadge,
	)
	return &dp, nil
}

// Update applies a correction. Validation, numeric derivation and
// contradiction reconciliation run again on the merged row.
func (s *Service) Update(ctx context.Context, id domain.DataPointID, patch models.Patch) (*models.DataPoint, error) {
	if patch.IsEmpty() {
		s.metrics.IncrementWrite("update", "rejected")
		return nil, dErrors.New(dErrors.CodeValidation, "patch changes nothing")
	}
	now := requestcontext.Now(ctx).UTC()
	var updated *models.DataPoint
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		before, err := s.store.FindByID(ctx, id)
		if err != nil {
			return translateFind(err, id)
		}
		after := before.Clone()
		patch.Apply(after)
		if err := after.Validate(); err != nil {
			return err
		}
		// A row that stops diverging is no longer contested unless the caller says so.
		if before.VerificationStatus == domain.StatusContested && patch.VerificationStatus == nil && !after.Divergent() {
			after.VerificationStatus = domain.StatusUnverified
		}
		sources, err := s.prepare(ctx, after)
		if err != nil {
			return err
		}
		after.UpdatedAt = now
		if err := s.store.Update(ctx, after); err != nil {
			return translateWrite(err)
		}
		if err := s.changelog.Append(ctx, diff(before, after, patch.Reason, now)...); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record changelog")
		}
		affected := []string{after.MetricName}
		if before.MetricName != after.MetricName {
			affected = append(affected, before.MetricName)
		}
		if err := s.reconcile(ctx, after, sources, affected...); err != nil {
			return err
		}
		if err := s.restamp(ctx, after, affected...); err != nil {
			return err
		}
		updated = after
		return nil
	})
	if err != nil {
		s.metrics.IncrementWrite("update", outcome(err))
		return nil, err
	}
	s.metrics.IncrementWrite("update", "ok")
	if updated.Divergent() {
		s.metrics.IncrementContested()
	}
	s.logger.InfoContext(ctx, "data point updated",
		"request_id", requestcontext.RequestID(ctx),
		"data_point_id", id,
		"verification_status", updated.VerificationStatus,
		"trust_badge", updated.TrustBadge,
	)
	return updated, nil
}

// Get returns the data point with its live badge.
func (s *Service) Get(ctx context.Context, id domain.DataPointID) (*View, error) {
	dp, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, translateFind(err, id)
	}
	facts, err := s.annotator.Facts(ctx, []trust.Subject{subject(dp)})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to score data point")
	}
	view := &View{DataPoint: dp, Badge: trust.Score(facts[dp.ID])}
	history, err := s.contradictions.ForMetric(ctx, dp.MetricName)
	if err != nil {
		return nil, err
	}
	for _, c := range history {
		if c.IsOpen() {
			view.Contradiction = c
			break
		}
	}
	return view, nil
}

// History returns the changelog of a data point, oldest first.
func (s *Service) History(ctx context.Context, id domain.DataPointID) ([]changelog.Entry, error) {
	if _, err := s.store.FindByID(ctx, id); err != nil {
		return nil, translateFind(err, id)
	}
	entries, err := s.changelog.ForRecord(ctx, table, int64(id))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load changelog")
	}
	return entries, nil
}

// prepare checks every referenced source, fills the derived fields and
// returns the referenced sources by ID.
func (s *Service) prepare(ctx context.Context, dp *models.DataPoint) (map[domain.SourceID]*sourcemodels.Source, error) {
	dp.CrossReferences = pkgstrings.Dedupe(dp.CrossReferences)
	ids := pkgstrings.Dedupe(dp.ReferencedSources())
	sources, err := s.sources.ShareMany(ctx, ids)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load sources")
	}
	if err := requireSource(sources, dp.PrimarySourceID, "primary_source_id"); err != nil {
		return nil, err
	}
	for _, id := range dp.CrossReferences {
		if err := requireSource(sources, id, "cross_references"); err != nil {
			return nil, err
		}
	}
	for _, side := range []struct {
		field string
		id    domain.SourceID
	}{
		{"government_source_id", dp.GovernmentSourceID},
		{"independent_source_id", dp.IndependentSourceID},
	} {
		if !side.id.IsNil() {
			if err := requireSource(sources, side.id, side.field); err != nil {
				return nil, err
			}
		}
	}

	if dp.ValueNumeric == nil {
		dp.ValueNumeric = figures.ParseNumeric(dp.Value)
	}
	if dp.GovernmentFigure != nil && dp.GovernmentSourceID.IsNil() {
		dp.GovernmentSourceID = firstCiting(dp, sources, true)
	}
	if dp.IndependentFigure != nil && dp.IndependentSourceID.IsNil() {
		dp.IndependentSourceID = firstCiting(dp, sources, false)
	}
	if dp.Divergent() {
		dp.VerificationStatus = domain.StatusContested
	}
	return sources, nil
}

// reconcile brings the open contradiction of each metric in line with its
// data points. It follows dp when dp diverges, otherwise the most recently
// updated divergent data point of the metric, and is resolved once no data
// point of the metric diverges.
func (s *Service) reconcile(ctx context.Context, dp *models.DataPoint, sources map[domain.SourceID]*sourcemodels.Source, metrics ...string) error {
	for _, metric := range metrics {
		if metric == dp.MetricName && dp.Divergent() {
			if err := s.contradict(ctx, dp, sources); err != nil {
				return err
			}
			continue
		}
		other, err := s.divergentSibling(ctx, metric, dp.ID)
		if err != nil {
			return err
		}
		if other == nil {
			if err := s.contradictions.Converged(ctx, metric); err != nil {
				return err
			}
			continue
		}
		otherSources, err := s.sources.ShareMany(ctx, pkgstrings.Dedupe(other.ReferencedSources()))
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load sources")
		}
		if err := s.contradict(ctx, other, otherSources); err != nil {
			return err
		}
	}
	return nil
}

// divergentSibling returns the most recently updated divergent data point of
// metric other than self, with its cross-references, or nil.
func (s *Service) divergentSibling(ctx context.Context, metric string, self domain.DataPointID) (*models.DataPoint, error) {
	candidates, err := s.store.WithBothFigures(ctx, metric)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list data points for metric")
	}
	for _, c := range candidates {
		if c.ID == self || !c.Divergent() {
			continue
		}
		dp, err := s.store.FindByID(ctx, c.ID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load data point")
		}
		return dp, nil
	}
	return nil, nil
}

func (s *Service) contradict(ctx context.Context, dp *models.DataPoint, sources map[domain.SourceID]*sourcemodels.Source) error {
	govSupport, indepSupport := support(dp, sources)
	_, err := s.contradictions.Record(ctx, resolver.Input{
		MetricName:     dp.MetricName,
		MetricCategory: dp.MetricCategory,
		DataPointID:    dp.ID,
		Government:     claim(*dp.GovernmentFigure, dp.GovernmentSourceID, sources, govSupport),
		Independent:    claim(*dp.IndependentFigure, dp.IndependentSourceID, sources, indepSupport),
		Notes:          dp.DiscrepancyNotes,
		Date:           dp.UpdatedAt,
	})
	return err
}

// restamp recomputes the stored badge of every data point of the given
// metrics, since a contradiction applies to the whole metric.
func (s *Service) restamp(ctx context.Context, dp *models.DataPoint, metrics ...string) error {
	for _, metric := range metrics {
		subjects, err := s.store.SubjectsByMetric(ctx, metric)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list data points for metric")
		}
		facts, err := s.annotator.Facts(ctx, subjects)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to score data points")
		}
		for _, sub := range subjects {
			badge := trust.Score(facts[sub.ID])
			if err := s.store.SetBadge(ctx, sub.ID, badge); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to stamp trust badge")
			}
			if sub.ID == dp.ID {
				dp.TrustBadge = string(badge)
			}
		}
	}
	return nil
}

func subject(dp *models.DataPoint) trust.Subject {
	return trust.Subject{
		ID:              dp.ID,
		MetricName:      dp.MetricName,
		PrimarySourceID: dp.PrimarySourceID,
		Status:          dp.VerificationStatus,
	}
}

func requireSource(sources map[domain.SourceID]*sourcemodels.Source, id domain.SourceID, field string) error {
	src, ok := sources[id]
	if !ok {
		return dErrors.New(dErrors.CodeUnknownSource, field+": source "+id.String()+" does not exist")
	}
	if src.IsRetired() {
		return dErrors.New(dErrors.CodeUnknownSource, field+": source "+id.String()+" is retired")
	}
	return nil
}

// firstCiting picks the first cited source (primary, then cross-references
// in order) on the requested side.
func firstCiting(dp *models.DataPoint, sources map[domain.SourceID]*sourcemodels.Source, government bool) domain.SourceID {
	for _, id := range append([]domain.SourceID{dp.PrimarySourceID}, dp.CrossReferences...) {
		if src, ok := sources[id]; ok && src.Category.IsGovernment() == government {
			return id
		}
	}
	return 0
}

// support counts the cross-references corroborating each side. The sources
// the figures are attributed to do not corroborate themselves.
func support(dp *models.DataPoint, sources map[domain.SourceID]*sourcemodels.Source) (government, independent int) {
	for _, id := range dp.CrossReferences {
		src, ok := sources[id]
		if !ok || id == dp.GovernmentSourceID || id == dp.IndependentSourceID {
			continue
		}
		if src.Category.IsGovernment() {
			government++
		} else {
			independent++
		}
	}
	return government, independent
}

func claim(figure string, id domain.SourceID, sources map[domain.SourceID]*sourcemodels.Source, support int) resolver.Claim {
	c := resolver.Claim{Figure: figure, SourceID: id, Support: support}
	if src, ok := sources[id]; ok {
		c.Tier = src.TrustTier
	}
	return c
}

func diff(before, after *models.DataPoint, reason string, at time.Time) []changelog.Entry {
	id := int64(after.ID)
	fields := []struct {
		name          string
		before, after *string
	}{
		{"metric_name", &before.MetricName, &after.MetricName},
		{"value", &before.Value, &after.Value},
		{"value_numeric", formatFloat(before.ValueNumeric), formatFloat(after.ValueNumeric)},
		{"verification_status", statusPtr(before.VerificationStatus), statusPtr(after.VerificationStatus)},
		{"government_figure", before.GovernmentFigure, after.GovernmentFigure},
		{"independent_figure", before.IndependentFigure, after.IndependentFigure},
		{"primary_source_id", idPtr(before.PrimarySourceID), idPtr(after.PrimarySourceID)},
		{"cross_references", joinIDs(before.CrossReferences), joinIDs(after.CrossReferences)},
	}
	var out []changelog.Entry
	for _, f := range fields {
		if e, ok := changelog.Diff(table, id, f.name, f.before, f.after, reason); ok {
			e.ChangedAt = at
			out = append(out, e)
		}
	}
	return out
}

func formatFloat(f *float64) *string {
	if f == nil {
		return nil
	}
	s := strconv.FormatFloat(*f, 'g', -1, 64)
	return &s
}

func statusPtr(v domain.VerificationStatus) *string {
	s := string(v)
	return &s
}

func idPtr(id domain.SourceID) *string {
	s := id.String()
	return &s
}

func joinIDs(ids []domain.SourceID) *string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	s := strings.Join(parts, ",")
	return &s
}

func translateFind(err error, id domain.DataPointID) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "data point "+id.String()+" not found")
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load data point")
}

func translateWrite(err error) error {
	if errors.Is(err, sentinel.ErrForeignKey) {
		return dErrors.New(dErrors.CodeUnknownSource, "data point references a source that does not exist")
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save data point")
}

func outcome(err error) string {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		return "error"
	}
	return "rejected"
}
