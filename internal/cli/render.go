package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"explorer/internal/query"
	"explorer/internal/trust"
	"explorer/pkg/domain"
)

var (
	green   = color.New(color.FgGreen)
	yellow  = color.New(color.FgYellow)
	red     = color.New(color.FgRed)
	magenta = color.New(color.FgMagenta)
	faint   = color.New(color.Faint)
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func row(w io.Writer, cells ...string) {
	fmt.Fprintln(w, strings.Join(cells, "\t"))
}

func badge(b string) string {
	switch trust.Badge(b) {
	case trust.BadgeVerified:
		return green.Sprint(b)
	case trust.BadgeContested:
		return red.Sprint(b)
	case trust.BadgeGovernmentOnly:
		return yellow.Sprint(b)
	default:
		return faint.Sprint(b)
	}
}

func tier(t domain.TrustTier) string {
	switch t {
	case domain.TierHigh:
		return green.Sprint(t)
	case domain.TierMedium:
		return yellow.Sprint(t)
	case domain.TierLow:
		return red.Sprint(t)
	default:
		return magenta.Sprint(t)
	}
}

// cell renders one result value the way exports do, colouring trust badges.
func cell(column string, v any) string {
	if column == query.BadgeColumn {
		if s, ok := v.(string); ok {
			return badge(s)
		}
	}
	s := query.FormatValue(v)
	if s == "" {
		return faint.Sprint("-")
	}
	return s
}

func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", green.Sprint("✓"), fmt.Sprintf(format, args...))
}
