// Package query runs parameterized reads over the catalog's tables. Every
// identifier in the generated SQL comes from the catalog and every value is a
// bound parameter; data point rows are annotated with their live trust badge.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"explorer/internal/catalog"
	"explorer/internal/platform/database"
	"explorer/internal/query/metrics"
	"explorer/internal/trust"
	"explorer/pkg/domain"
	dErrors "explorer/pkg/domain-errors"
	"explorer/pkg/platform/tx"
	"explorer/pkg/requestcontext"
)

// BadgeColumn is appended to the columns of badged tables.
const BadgeColumn = "trust_badge"

// Badger computes live badges for data point rows.
type Badger interface {
	Badges(ctx context.Context, subjects []trust.Subject) (map[domain.DataPointID]trust.Badge, error)
}

// Config bounds the engine. Zero values take the defaults.
type Config struct {
	DefaultLimit  int
	MaxLimit      int
	MaxExportRows int
}

const (
	defaultLimit  = 100
	maxLimit      = 1000
	maxExportRows = 100000
)

func (c Config) withDefaults() Config {
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = defaultLimit
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = maxLimit
	}
	if c.DefaultLimit > c.MaxLimit {
		c.DefaultLimit = c.MaxLimit
	}
	if c.MaxExportRows <= 0 {
		c.MaxExportRows = maxExportRows
	}
	return c
}

type Engine struct {
	db      *sql.DB
	dialect database.Dialect
	catalog *catalog.Catalog
	badger  Badger
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures optional collaborators.
type Option func(*Engine)

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

func New(db *database.DB, cat *catalog.Catalog, badger Badger, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		db:      db.DB,
		dialect: db.Dialect,
		catalog: cat,
		badger:  badger,
		cfg:     cfg.withDefaults(),
		logger:  slog.Default(),
		tracer:  otel.Tracer("explorer/query"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Catalog exposes the table registry the engine validates against.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// Execute runs one page of req. A limit above the cap is clamped rather than
// rejected; TotalMatched always counts the whole matched set.
func (e *Engine) Execute(ctx context.Context, req Request) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "query.Execute",
		trace.WithAttributes(attribute.String("query.table", req.Table)))
	defer span.End()
	start := time.Now()

	p, err := compile(e.catalog, req)
	if err != nil {
		return nil, e.reject(ctx, span, req.Table, err)
	}
	limit, offset := e.window(req.Page)
	span.SetAttributes(
		attribute.Int("query.filters", len(p.filters)),
		attribute.Int("query.limit", limit),
		attribute.Int("query.offset", offset),
	)

	where, args := p.where()
	total, err := e.count(ctx, p.table, where, args)
	if err != nil {
		return nil, e.fail(ctx, span, p.table.Name, err)
	}

	query := p.selectSQL() + where + p.orderBy() + " LIMIT ? OFFSET ?"
	rows, err := e.fetch(ctx, p.table, query, append(append([]any{}, args...), limit, offset))
	if err != nil {
		return nil, e.fail(ctx, span, p.table.Name, err)
	}

	result := &Result{
		Table:          p.table.Name,
		Columns:        resultColumns(p.table),
		Rows:           rows,
		TotalMatched:   total,
		Offset:         offset,
		Limit:          limit,
		AppliedFilters: p.filters,
		AppliedSort:    p.sort,
		Search:         p.search,
	}
	if req.Summary {
		if result.Summary, err = e.summarize(ctx, p, where, args); err != nil {
			return nil, e.fail(ctx, span, p.table.Name, err)
		}
	}

	elapsed := time.Since(start)
	e.metrics.ObserveQuery(p.table.Name, "execute", elapsed, len(rows))
	span.SetAttributes(attribute.Int64("query.total_matched", total), attribute.Int("query.rows", len(rows)))
	e.logger.InfoContext(ctx, "query executed",
		"request_id", requestcontext.RequestID(ctx),
		"table", p.table.Name,
		"filters", len(p.filters),
		"rows", len(rows),
		"total_matched", total,
		"duration_ms", elapsed.Milliseconds(),
	)
	return result, nil
}

func (e *Engine) window(page Page) (limit, offset int) {
	limit = page.Limit
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}
	if limit > e.cfg.MaxLimit {
		limit = e.cfg.MaxLimit
	}
	offset = max(page.Offset, 0)
	return limit, offset
}

func (e *Engine) execer(ctx context.Context) tx.Executor {
	return tx.Pick(ctx, e.db)
}

func (e *Engine) count(ctx context.Context, table *catalog.Table, where string, args []any) (int64, error) {
	var n int64
	query := e.dialect.Rebind("SELECT COUNT(*) FROM " + quote(table.Name) + where)
	if err := e.execer(ctx).QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table.Name, err)
	}
	return n, nil
}

// fetch runs query and scans every row before badging, so the rows are
// closed before the annotator issues its own lookups.
func (e *Engine) fetch(ctx context.Context, table *catalog.Table, query string, args []any) ([]Row, error) {
	rows, err := e.scanAll(ctx, table, e.dialect.Rebind(query), args)
	if err != nil {
		return nil, err
	}
	if table.Badged && len(rows) > 0 {
		if err := e.annotate(ctx, rows); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

func (e *Engine) scanAll(ctx context.Context, table *catalog.Table, query string, args []any) ([]Row, error) {
	rows, err := e.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table.Name, err)
	}
	defer rows.Close()

	out := []Row{}
	dest := make([]any, len(table.Columns))
	for rows.Next() {
		for i, col := range table.Columns {
			dest[i] = holder(col.Type)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table.Name, err)
		}
		row := make(Row, len(table.Columns)+1)
		for i, col := range table.Columns {
			row[col.Name] = unwrap(dest[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table.Name, err)
	}
	return out, nil
}

func (e *Engine) annotate(ctx context.Context, rows []Row) error {
	subjects := make([]trust.Subject, 0, len(rows))
	for _, r := range rows {
		subjects = append(subjects, subjectOf(r))
	}
	badges, err := e.badger.Badges(ctx, subjects)
	if err != nil {
		return fmt.Errorf("badge rows: %w", err)
	}
	for i, r := range rows {
		badge, ok := badges[subjects[i].ID]
		if !ok {
			badge = trust.BadgeUnverified
		}
		r[BadgeColumn] = string(badge)
	}
	return nil
}

func subjectOf(r Row) trust.Subject {
	id, _ := r[catalog.KeyColumn].(int64)
	metric, _ := r["metric_name"].(string)
	source, _ := r["primary_source_id"].(int64)
	status, _ := r["verification_status"].(string)
	return trust.Subject{
		ID:              domain.DataPointID(id),
		MetricName:      metric,
		PrimarySourceID: domain.SourceID(source),
		Status:          domain.VerificationStatus(status),
	}
}

func holder(t catalog.SemanticType) any {
	switch t {
	case catalog.TypeInteger:
		return new(sql.NullInt64)
	case catalog.TypeNumeric:
		return new(sql.NullFloat64)
	default:
		return new(sql.NullString)
	}
}

func unwrap(h any) any {
	switch v := h.(type) {
	case *sql.NullInt64:
		if v.Valid {
			return v.Int64
		}
	case *sql.NullFloat64:
		if v.Valid {
			return v.Float64
		}
	case *sql.NullString:
		if v.Valid {
			return v.String
		}
	}
	return nil
}

func resultColumns(t *catalog.Table) []string {
	cols := t.ColumnNames()
	if t.Badged {
		cols = append(cols, BadgeColumn)
	}
	return cols
}

func (p *plan) where() (string, []any) {
	if len(p.predicates) == 0 {
		return "", nil
	}
	parts := make([]string, len(p.predicates))
	var args []any
	for i, pred := range p.predicates {
		parts[i] = pred.sql
		args = append(args, pred.args...)
	}
	return " WHERE " + strings.Join(parts, " AND "), args
}

func (p *plan) selectSQL() string {
	cols := make([]string, len(p.table.Columns))
	for i, c := range p.table.Columns {
		cols[i] = quote(c.Name)
	}
	return "SELECT " + strings.Join(cols, ", ") + " FROM " + quote(p.table.Name)
}

// orderBy sorts by the requested column with NULLs last on both dialects and
// breaks ties on the key, which is insertion order.
func (p *plan) orderBy() string {
	key := quote(catalog.KeyColumn)
	if p.sort == nil {
		return " ORDER BY " + key + " ASC"
	}
	dir := strings.ToUpper(string(p.sort.Direction))
	if p.sort.Column == catalog.KeyColumn {
		return " ORDER BY " + key + " " + dir
	}
	return " ORDER BY " + quote(p.sort.Column) + " " + dir + " NULLS LAST, " + key + " ASC"
}

func (e *Engine) reject(ctx context.Context, span trace.Span, table string, err error) error {
	code := dErrors.CodeOf(err)
	e.metrics.IncrementRejected(string(code))
	span.SetStatus(codes.Error, string(code))
	e.logger.WarnContext(ctx, "query rejected",
		"request_id", requestcontext.RequestID(ctx),
		"table", table,
		"code", code,
		"error", err,
	)
	return err
}

func (e *Engine) fail(ctx context.Context, span trace.Span, table string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "query failed")
	e.logger.ErrorContext(ctx, "query failed",
		"request_id", requestcontext.RequestID(ctx),
		"table", table,
		"error", err,
	)
	if dErrors.CodeOf(err) != dErrors.CodeInternal {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "query failed")
}
