// Package service implements the source registry: registration, listing,
// re-verification with versioned history, and guarded retirement.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"explorer/internal/changelog"
	"explorer/internal/source/metrics"
	"explorer/internal/source/models"
	"explorer/pkg/domain"
	dErrors "explorer/pkg/domain-errors"
	"explorer/pkg/platform/sentinel"
	"explorer/pkg/requestcontext"
)

// Store is the persistence the registry needs.
type Store interface {
	Insert(ctx context.Context, src *models.Source) (domain.SourceID, error)
	FindByID(ctx context.Context, id domain.SourceID) (*models.Source, error)
	Lock(ctx context.Context, id domain.SourceID) (*models.Source, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.Source, error)
	UpdateVerification(ctx context.Context, src *models.Source) error
	Retire(ctx context.Context, id domain.SourceID, at time.Time, version int) error
	CountReferences(ctx context.Context, id domain.SourceID) (int, error)
	AppendVersion(ctx context.Context, v models.Version) error
	ListVersions(ctx context.Context, id domain.SourceID) ([]models.Version, error)
}

// Changelog records field-level changes.
type Changelog interface {
	Append(ctx context.Context, entries ...changelog.Entry) error
}

// TxRunner scopes a unit of work to one transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service is the source registry.
type Service struct {
	store     Store
	changelog Changelog
	tx        TxRunner
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func New(store Store, changelog Changelog, tx TxRunner, logger *slog.Logger, metrics *metrics.Metrics) *Service {
	return &Service{store: store, changelog: changelog, tx: tx, logger: logger, metrics: metrics}
}

// Register validates and stores a new source, recording version 1.
func (s *Service) Register(ctx context.Context, src models.Source) (*models.Source, error) {
	if err := src.Validate(); err != nil {
		s.metrics.IncrementWrite("register", "rejected")
		return nil, err
	}
	now := requestcontext.Now(ctx).UTC()
	src.Version = 1
	src.CreatedAt = now
	src.UpdatedAt = now
	src.RetiredAt = nil

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		id, err := s.store.Insert(ctx, &src)
		if err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "a source named "+src.Name+" is already registered")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to register source")
		}
		src.ID = id
		if err := s.store.AppendVersion(ctx, models.Version{
			SourceID: id, Version: src.Version, Snapshot: src, Reason: "registered", ChangedAt: now,
		}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record source version")
		}
		return s.changelog.Append(ctx, changelog.Entry{
			Table: "sources", RecordID: int64(id), ChangeType: changelog.ChangeCreate, ChangedAt: now,
		})
	})
	if err != nil {
		s.metrics.IncrementWrite("register", outcome(err))
		return nil, err
	}
	s.metrics.IncrementWrite("register", "ok")
	s.logger.InfoContext(ctx, "source registered",
		"request_id", requestcontext.RequestID(ctx),
		"source_id", src.ID,
		"category", src.Category,
		"trust_tier", src.TrustTier,
	)
	return &src, nil
}

// Get returns one source, including retired ones.
func (s *Service) Get(ctx context.Context, id domain.SourceID) (*models.Source, error) {
	src, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, translateFind(err, id)
	}
	return src, nil
}

// List returns active sources, optionally narrowed by category and tier.
func (s *Service) List(ctx context.Context, filter models.ListFilter) ([]*models.Source, error) {
	out, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list sources")
	}
	return out, nil
}

// MarkReverified records a fresh verification and stores a new version.
func (s *Service) MarkReverified(ctx context.Context, id domain.SourceID, rv models.Reverification) (*models.Source, error) {
	if err := rv.Validate(); err != nil {
		s.metrics.IncrementWrite("reverify", "rejected")
		return nil, err
	}
	now := requestcontext.Now(ctx).UTC()
	var updated *models.Source
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		src, err := s.store.FindByID(ctx, id)
		if err != nil {
			return translateFind(err, id)
		}
		if src.IsRetired() {
			return dErrors.New(dErrors.CodeValidation, "source "+id.String()+" is retired")
		}

		var entries []changelog.Entry
		prevDate := formatDatePtr(src.LastVerified)
		date := rv.Date
		src.LastVerified = &date
		if e, ok := changelog.Diff("sources", int64(id), "last_verified", prevDate, formatDatePtr(src.LastVerified), rv.Notes); ok {
			entries = append(entries, e)
		}
		notes := strings.TrimSpace(rv.Notes)
		prevNotes := src.VerificationNotes
		if e, ok := changelog.Diff("sources", int64(id), "verification_notes", &prevNotes, &notes, ""); ok {
			entries = append(entries, e)
		}
		src.VerificationNotes = notes
		if rv.ArchiveURL != nil {
			if e, ok := changelog.Diff("sources", int64(id), "archive_url", src.ArchiveURL, rv.ArchiveURL, ""); ok {
				entries = append(entries, e)
			}
			archive := *rv.ArchiveURL
			src.ArchiveURL = &archive
		}
		for i := range entries {
			entries[i].ChangeType = changelog.ChangeReverify
			entries[i].ChangedAt = now
		}
		src.Version++
		src.UpdatedAt = now

		if err := s.store.UpdateVerification(ctx, src); err != nil {
			return translateFind(err, id)
		}
		if err := s.store.AppendVersion(ctx, models.Version{
			SourceID: id, Version: src.Version, Snapshot: *src, Reason: "reverified", ChangedAt: now,
		}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record source version")
		}
		if err := s.changelog.Append(ctx, entries...); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record changelog")
		}
		updated = src
		return nil
	})
	if err != nil {
		s.metrics.IncrementWrite("reverify", outcome(err))
		return nil, err
	}
	s.metrics.IncrementWrite("reverify", "ok")
	s.logger.InfoContext(ctx, "source reverified",
		"request_id", requestcontext.RequestID(ctx),
		"source_id", id,
		"version", updated.Version,
	)
	return updated, nil
}

// Delete retires an unreferenced source. Sources cited by any data point or
// contradiction are rejected with a referential integrity error and left
// untouched. Rows are never physically removed. The source row stays locked
// until commit; data point writes share-lock the sources they cite, so a
// citation cannot land between the reference count and the retirement.
func (s *Service) Delete(ctx context.Context, id domain.SourceID) error {
	now := requestcontext.Now(ctx).UTC()
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		src, err := s.store.Lock(ctx, id)
		if err != nil {
			return translateFind(err, id)
		}
		if src.IsRetired() {
			return nil
		}
		refs, err := s.store.CountReferences(ctx, id)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check source references")
		}
		if refs > 0 {
			return dErrors.New(dErrors.CodeReferentialIntegrity,
				"source "+id.String()+" is referenced by existing records and cannot be deleted")
		}
		src.Version++
		src.RetiredAt = &now
		src.UpdatedAt = now
		if err := s.store.Retire(ctx, id, now, src.Version); err != nil {
			return translateFind(err, id)
		}
		if err := s.store.AppendVersion(ctx, models.Version{
			SourceID: id, Version: src.Version, Snapshot: *src, Reason: "retired", ChangedAt: now,
		}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record source version")
		}
		return s.changelog.Append(ctx, changelog.Entry{
			Table: "sources", RecordID: int64(id), ChangeType: changelog.ChangeRetire, ChangedAt: now,
		})
	})
	if err != nil {
		s.metrics.IncrementWrite("delete", outcome(err))
		s.logger.WarnContext(ctx, "source delete rejected",
			"request_id", requestcontext.RequestID(ctx),
			"source_id", id,
			"error", err,
		)
		return err
	}
	s.metrics.IncrementWrite("delete", "ok")
	return nil
}

// History returns every stored version of a source.
func (s *Service) History(ctx context.Context, id domain.SourceID) ([]models.Version, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	versions, err := s.store.ListVersions(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load source history")
	}
	return versions, nil
}

func translateFind(err error, id domain.SourceID) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "source "+id.String()+" not found")
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load source")
}

func outcome(err error) string {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		return "error"
	}
	return "rejected"
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := domain.FormatDate(*t)
	return &s
}
