package trust

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	sourcemodels "explorer/internal/source/models"
	"explorer/pkg/domain"
	"explorer/pkg/platform/tx"
)

// SourceLookup loads sources by ID; missing IDs are simply absent.
type SourceLookup interface {
	FindMany(ctx context.Context, ids []domain.SourceID) (map[domain.SourceID]*sourcemodels.Source, error)
}

// ContradictionLookup reports which metrics have an open contradiction.
type ContradictionLookup interface {
	OpenMetrics(ctx context.Context, metrics []string) (map[string]bool, error)
}

// CrossReferenceCounter counts cross-references per data point.
type CrossReferenceCounter interface {
	CountCrossReferences(ctx context.Context, ids []domain.DataPointID) (map[domain.DataPointID]int, error)
}

// Subject is the part of a data point row the badge needs.
type Subject struct {
	ID              domain.DataPointID
	MetricName      string
	PrimarySourceID domain.SourceID
	Status          domain.VerificationStatus
}

type sourceFacts struct {
	tier     domain.TrustTier
	category domain.SourceCategory
}

// Annotator computes live badges for a batch of data points. Source tier and
// category never change once a source is referenced, so they are cached.
type Annotator struct {
	sources        SourceLookup
	contradictions ContradictionLookup
	crossRefs      CrossReferenceCounter
	cache          *gocache.Cache
}

func NewAnnotator(sources SourceLookup, contradictions ContradictionLookup, crossRefs CrossReferenceCounter, ttl time.Duration) *Annotator {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Annotator{
		sources:        sources,
		contradictions: contradictions,
		crossRefs:      crossRefs,
		cache:          gocache.New(ttl, 2*ttl),
	}
}

// Badges returns the badge of every subject, keyed by data point ID.
func (a *Annotator) Badges(ctx context.Context, subjects []Subject) (map[domain.DataPointID]Badge, error) {
	facts, err := a.Facts(ctx, subjects)
	if err != nil {
		return nil, err
	}
	out := make(map[domain.DataPointID]Badge, len(facts))
	for id, f := range facts {
		out[id] = Score(f)
	}
	return out, nil
}

// Facts gathers the scoring inputs for subjects. Lookups run concurrently
// unless the context carries a transaction, which is bound to one connection.
func (a *Annotator) Facts(ctx context.Context, subjects []Subject) (map[domain.DataPointID]Facts, error) {
	out := make(map[domain.DataPointID]Facts, len(subjects))
	if len(subjects) == 0 {
		return out, nil
	}

	var (
		sourceIDs []domain.SourceID
		metrics   []string
		pointIDs  []domain.DataPointID
	)
	for _, s := range subjects {
		pointIDs = append(pointIDs, s.ID)
		if !slices.Contains(metrics, s.MetricName) {
			metrics = append(metrics, s.MetricName)
		}
		if !slices.Contains(sourceIDs, s.PrimarySourceID) {
			sourceIDs = append(sourceIDs, s.PrimarySourceID)
		}
	}

	var (
		sources map[domain.SourceID]sourceFacts
		open    map[string]bool
		counts  map[domain.DataPointID]int
	)
	g, gctx := errgroup.WithContext(ctx)
	if _, inTx := tx.From(ctx); inTx {
		g.SetLimit(1)
	}
	g.Go(func() error {
		var err error
		sources, err = a.sourceFacts(gctx, sourceIDs)
		return err
	})
	g.Go(func() error {
		var err error
		open, err = a.contradictions.OpenMetrics(gctx, metrics)
		return err
	})
	g.Go(func() error {
		var err error
		counts, err = a.crossRefs.CountCrossReferences(gctx, pointIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("gather trust facts: %w", err)
	}

	for _, s := range subjects {
		src := sources[s.PrimarySourceID]
		out[s.ID] = Facts{
			Tier:              src.tier,
			Category:          src.category,
			Status:            s.Status,
			OpenContradiction: open[s.MetricName],
			CrossReferences:   counts[s.ID],
		}
	}
	return out, nil
}

func (a *Annotator) sourceFacts(ctx context.Context, ids []domain.SourceID) (map[domain.SourceID]sourceFacts, error) {
	out := make(map[domain.SourceID]sourceFacts, len(ids))
	var missing []domain.SourceID
	for _, id := range ids {
		if v, ok := a.cache.Get(cacheKey(id)); ok {
			out[id] = v.(sourceFacts)
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}
	found, err := a.sources.FindMany(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, src := range found {
		f := sourceFacts{tier: src.TrustTier, category: src.Category}
		a.cache.SetDefault(cacheKey(id), f)
		out[id] = f
	}
	return out, nil
}

// Forget drops a cached source.
func (a *Annotator) Forget(id domain.SourceID) {
	a.cache.Delete(cacheKey(id))
}

func cacheKey(id domain.SourceID) string {
	return strconv.FormatInt(int64(id), 10)
}
