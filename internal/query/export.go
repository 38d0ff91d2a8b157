package query

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"explorer/pkg/domain"
	dErrors "explorer/pkg/domain-errors"
	"explorer/pkg/requestcontext"
)

// Format is an export encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ContentType is the media type an export is served with.
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/csv; charset=utf-8"
}

// Export is a fully materialized, unpaginated result set.
type Export struct {
	Table       string
	Format      Format
	Columns     []string
	Rows        []Row
	GeneratedAt time.Time
}

// Filename is <table>-export-<date>.<ext>.
func (x *Export) Filename() string {
	return fmt.Sprintf("%s-export-%s.%s", x.Table, domain.FormatDate(x.GeneratedAt), x.Format)
}

// Write encodes the export in its format.
func (x *Export) Write(w io.Writer) error {
	if x.Format == FormatJSON {
		return x.WriteJSON(w)
	}
	return x.WriteCSV(w)
}

// WriteCSV writes a header row followed by one record per row, in catalog
// column order. NULL is written as an empty field.
func (x *Export) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(x.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(x.Columns))
	for _, row := range x.Rows {
		for i, col := range x.Columns {
			record[i] = FormatValue(row[col])
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes the rows as an indented array of objects.
func (x *Export) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	rows := x.Rows
	if rows == nil {
		rows = []Row{}
	}
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("write json export: %w", err)
	}
	return nil
}

// FormatValue renders a cell as text. Floats use the shortest exact form.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// Export materializes every row matching req, ignoring its page. Result sets
// above the export cap are refused, never truncated.
func (e *Engine) Export(ctx context.Context, req Request, format Format) (*Export, error) {
	ctx, span := e.tracer.Start(ctx, "query.Export",
		trace.WithAttributes(attribute.String("query.table", req.Table), attribute.String("export.format", string(format))))
	defer span.End()
	start := time.Now()

	if format != FormatCSV && format != FormatJSON {
		return nil, e.reject(ctx, span, req.Table, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unsupported export format %q", format)))
	}
	p, err := compile(e.catalog, req)
	if err != nil {
		e.metrics.IncrementExport(string(format), "rejected")
		return nil, e.reject(ctx, span, req.Table, err)
	}

	where, args := p.where()
	total, err := e.count(ctx, p.table, where, args)
	if err != nil {
		e.metrics.IncrementExport(string(format), "error")
		return nil, e.fail(ctx, span, p.table.Name, err)
	}
	if total > int64(e.cfg.MaxExportRows) {
		e.metrics.IncrementExport(string(format), "too_large")
		return nil, e.reject(ctx, span, p.table.Name, dErrors.New(dErrors.CodeExportTooLarge,
			fmt.Sprintf("export of %s matches %d rows; the limit is %d, narrow the filters", p.table.Name, total, e.cfg.MaxExportRows)))
	}

	// One row past the cap detects inserts racing the count.
	query := p.selectSQL() + where + p.orderBy() + " LIMIT ?"
	rows, err := e.fetch(ctx, p.table, query, append(append([]any{}, args...), e.cfg.MaxExportRows+1))
	if err != nil {
		e.metrics.IncrementExport(string(format), "error")
		return nil, e.fail(ctx, span, p.table.Name, err)
	}
	if len(rows) > e.cfg.MaxExportRows {
		e.metrics.IncrementExport(string(format), "too_large")
		return nil, e.reject(ctx, span, p.table.Name, dErrors.New(dErrors.CodeExportTooLarge,
			fmt.Sprintf("export of %s exceeds %d rows", p.table.Name, e.cfg.MaxExportRows)))
	}

	elapsed := time.Since(start)
	e.metrics.IncrementExport(string(format), "ok")
	e.metrics.ObserveQuery(p.table.Name, "export", elapsed, len(rows))
	span.SetAttributes(attribute.Int("query.rows", len(rows)))
	e.logger.InfoContext(ctx, "export prepared",
		"request_id", requestcontext.RequestID(ctx),
		"table", p.table.Name,
		"format", string(format),
		"rows", len(rows),
		"duration_ms", elapsed.Milliseconds(),
	)
	return &Export{
		Table:       p.table.Name,
		Format:      format,
		Columns:     resultColumns(p.table),
		Rows:        rows,
		GeneratedAt: requestcontext.Now(ctx).UTC(),
	}, nil
}

// ExportCSV writes the CSV export of req to w and returns its filename.
func (e *Engine) ExportCSV(ctx context.Context, req Request, w io.Writer) (string, error) {
	return e.exportTo(ctx, req, FormatCSV, w)
}

// ExportJSON writes the JSON export of req to w and returns its filename.
func (e *Engine) ExportJSON(ctx context.Context, req Request, w io.Writer) (string, error) {
	return e.exportTo(ctx, req, FormatJSON, w)
}

func (e *Engine) exportTo(ctx context.Context, req Request, format Format, w io.Writer) (string, error) {
	x, err := e.Export(ctx, req, format)
	if err != nil {
		return "", err
	}
	if err := x.Write(w); err != nil {
		return "", err
	}
	return x.Filename(), nil
}
