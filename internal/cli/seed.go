package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"explorer/internal/app"
	dpmodels "explorer/internal/datapoint/models"
	sourcemodels "explorer/internal/source/models"
	"explorer/pkg/domain"
)

// seedFile is the YAML document accepted by `explorerctl seed`. Data points
// and cross references name sources by key, which defaults to the name.
type seedFile struct {
	Sources    []seedSource                `yaml:"sources"`
	DataPoints []seedDataPoint             `yaml:"data_points"`
	Datasets   map[string][]map[string]any `yaml:"datasets"`
}

type seedSource struct {
	Key               string `yaml:"key"`
	Name              string `yaml:"name"`
	Category          string `yaml:"category"`
	TrustTier         string `yaml:"trust_tier"`
	URL               string `yaml:"url"`
	ArchiveURL        string `yaml:"archive_url"`
	LastVerified      string `yaml:"last_verified"`
	VerificationNotes string `yaml:"verification_notes"`
	KnownLimitations  string `yaml:"known_limitations"`
	Derived           bool   `yaml:"derived"`
}

type seedDataPoint struct {
	MetricName         string   `yaml:"metric_name"`
	MetricCategory     string   `yaml:"metric_category"`
	Value              string   `yaml:"value"`
	ValueNumeric       *float64 `yaml:"value_numeric"`
	Unit               string   `yaml:"unit"`
	DateReported       string   `yaml:"date_reported"`
	DateRetrieved      string   `yaml:"date_retrieved"`
	PrimarySource      string   `yaml:"primary_source"`
	VerificationStatus string   `yaml:"verification_status"`
	CrossReferences    []string `yaml:"cross_references"`
	GovernmentFigure   *string  `yaml:"government_figure"`
	IndependentFigure  *string  `yaml:"independent_figure"`
	DiscrepancyNotes   string   `yaml:"discrepancy_notes"`
	MethodologyNotes   string   `yaml:"methodology_notes"`
	Caveats            string   `yaml:"caveats"`
}

type seedReport struct {
	sourcesCreated, sourcesExisting int
	dataPoints                      int
	rows                            map[string]int
}

func seedCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "seed [file.yaml]",
		Short: "Load sources, data points and dataset rows from a YAML file",
		Long: `Load a seed document into the database.

Sources already registered under the same name are reused, so a seed file
can be re-run after adding sources to it. Data points and dataset rows are
always appended.

Example:
  explorerctl seed testdata/seed.yaml --database-dsn explorer.db`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read seed file: %w", err)
			}
			var doc seedFile
			if err := yaml.Unmarshal(raw, &doc); err != nil {
				return fmt.Errorf("parse seed file %s: %w", args[0], err)
			}
			s, err := e.open(cmd)
			if err != nil {
				return err
			}
			report, err := seed(cmd.Context(), s, doc)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			success(out, "sources: %d registered, %d already present", report.sourcesCreated, report.sourcesExisting)
			success(out, "data points: %d recorded", report.dataPoints)
			tables := make([]string, 0, len(report.rows))
			for t := range report.rows {
				tables = append(tables, t)
			}
			sort.Strings(tables)
			for _, t := range tables {
				success(out, "%s: %d rows", t, report.rows[t])
			}
			return nil
		},
	}
}

func seed(ctx context.Context, s *app.Services, doc seedFile) (*seedReport, error) {
	report := &seedReport{rows: make(map[string]int)}

	existing, err := s.Sources.List(ctx, sourcemodels.ListFilter{IncludeRetired: true})
	if err != nil {
		return nil, err
	}
	byName := make(map[string]domain.SourceID, len(existing))
	for _, src := range existing {
		byName[src.Name] = src.ID
	}

	keys := make(map[string]domain.SourceID, len(doc.Sources))
	for i, ss := range doc.Sources {
		key := ss.Key
		if key == "" {
			key = ss.Name
		}
		if _, dup := keys[key]; dup {
			return nil, fmt.Errorf("sources[%d]: duplicate key %q", i, key)
		}
		if id, ok := byName[strings.TrimSpace(ss.Name)]; ok {
			keys[key] = id
			report.sourcesExisting++
			continue
		}
		src, err := ss.model()
		if err != nil {
			return nil, fmt.Errorf("sources[%d]: %w", i, err)
		}
		created, err := s.Sources.Register(ctx, *src)
		if err != nil {
			return nil, fmt.Errorf("sources[%d] %q: %w", i, ss.Name, err)
		}
		keys[key] = created.ID
		report.sourcesCreated++
	}

	for i, sd := range doc.DataPoints {
		dp, err := sd.model(keys)
		if err != nil {
			return nil, fmt.Errorf("data_points[%d]: %w", i, err)
		}
		if _, err := s.DataPoints.Record(ctx, *dp); err != nil {
			return nil, fmt.Errorf("data_points[%d] %q: %w", i, sd.MetricName, err)
		}
		report.dataPoints++
	}

	tables := make([]string, 0, len(doc.Datasets))
	for t := range doc.Datasets {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	for _, table := range tables {
		rows := doc.Datasets[table]
		err := s.Tx.RunInTx(ctx, func(ctx context.Context) error {
			for i, r := range rows {
				if _, err := s.Datasets.Insert(ctx, table, r); err != nil {
					return fmt.Errorf("datasets.%s[%d]: %w", table, i, err)
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		report.rows[table] = len(rows)
	}
	return report, nil
}

func (ss seedSource) model() (*sourcemodels.Source, error) {
	category, err := domain.ParseSourceCategory(ss.Category)
	if err != nil {
		return nil, err
	}
	tier, err := domain.ParseTrustTier(ss.TrustTier)
	if err != nil {
		return nil, err
	}
	src := &sourcemodels.Source{
		Name:              ss.Name,
		Category:          category,
		TrustTier:         tier,
		URL:               ss.URL,
		VerificationNotes: ss.VerificationNotes,
		KnownLimitations:  ss.KnownLimitations,
		Derived:           ss.Derived,
	}
	if ss.ArchiveURL != "" {
		src.ArchiveURL = &ss.ArchiveURL
	}
	if src.LastVerified, err = optionalDate("last_verified", ss.LastVerified); err != nil {
		return nil, err
	}
	return src, nil
}

func (sd seedDataPoint) model(keys map[string]domain.SourceID) (*dpmodels.DataPoint, error) {
	primary, ok := keys[sd.PrimarySource]
	if !ok {
		return nil, fmt.Errorf("primary_source %q is not a source key", sd.PrimarySource)
	}
	dp := &dpmodels.DataPoint{
		MetricName:        sd.MetricName,
		MetricCategory:    sd.MetricCategory,
		Value:             sd.Value,
		ValueNumeric:      sd.ValueNumeric,
		Unit:              sd.Unit,
		PrimarySourceID:   primary,
		GovernmentFigure:  sd.GovernmentFigure,
		IndependentFigure: sd.IndependentFigure,
		DiscrepancyNotes:  sd.DiscrepancyNotes,
		MethodologyNotes:  sd.MethodologyNotes,
		Caveats:           sd.Caveats,
	}
	if sd.VerificationStatus != "" {
		status, err := domain.ParseVerificationStatus(sd.VerificationStatus)
		if err != nil {
			return nil, err
		}
		dp.VerificationStatus = status
	}
	for _, ref := range sd.CrossReferences {
		id, ok := keys[ref]
		if !ok {
			return nil, fmt.Errorf("cross reference %q is not a source key", ref)
		}
		dp.CrossReferences = append(dp.CrossReferences, id)
	}
	var err error
	if dp.DateReported, err = optionalDate("date_reported", sd.DateReported); err != nil {
		return nil, err
	}
	if dp.DateRetrieved, err = optionalDate("date_retrieved", sd.DateRetrieved); err != nil {
		return nil, err
	}
	return dp, nil
}

func optionalDate(field, s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := domain.ParseDate(field, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
