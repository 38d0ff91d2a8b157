// Package catalog is the static registry of explorable tables. It is parsed
// once at startup from an embedded YAML document and is read-only afterwards;
// the query engine validates every identifier it emits against it.
package catalog

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"explorer/internal/platform/database"
)

//go:embed catalog.yaml
var embedded []byte

// KeyColumn is the insertion-ordered primary key every table carries.
const KeyColumn = "id"

// SemanticType drives operator validation and value coercion.
type SemanticType string

const (
	TypeText    SemanticType = "text"
	TypeInteger SemanticType = "integer"
	TypeNumeric SemanticType = "numeric"
	TypeDate    SemanticType = "date"
)

func (t SemanticType) valid() bool {
	switch t {
	case TypeText, TypeInteger, TypeNumeric, TypeDate:
		return true
	}
	return false
}

// IsNumeric reports whether aggregates (min/max/sum/avg) make sense.
func (t SemanticType) IsNumeric() bool {
	return t == TypeInteger || t == TypeNumeric
}

// Column describes one explorable column.
type Column struct {
	Name       string       `yaml:"name" json:"name"`
	Type       SemanticType `yaml:"type" json:"semantic_type"`
	Filterable bool         `yaml:"filterable" json:"filterable"`
	Sortable   bool         `yaml:"sortable" json:"sortable"`
	Label      string       `yaml:"label" json:"display_label"`
}

// Table describes one explorable table. Columns are in display/export order.
type Table struct {
	Name        string   `yaml:"name" json:"table_name"`
	Label       string   `yaml:"label" json:"label"`
	Description string   `yaml:"description" json:"description"`
	Core        bool     `yaml:"core" json:"core"`
	Badged      bool     `yaml:"badged" json:"badged"`
	Columns     []Column `yaml:"columns" json:"columns"`

	index map[string]int
}

// Column looks up a column by name.
func (t *Table) Column(name string) (Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return Column{}, false
	}
	return t.Columns[i], true
}

// ColumnNames returns column names in catalog order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// SearchColumns are the filterable text columns a free-text search spans.
func (t *Table) SearchColumns() []Column {
	var cols []Column
	for _, c := range t.Columns {
		if c.Filterable && c.Type == TypeText {
			cols = append(cols, c)
		}
	}
	return cols
}

// Catalog is the immutable set of tables.
type Catalog struct {
	tables []*Table
	byName map[string]*Table
}

type document struct {
	Tables []*Table `yaml:"tables"`
}

var identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Load parses the embedded catalog.
func Load() (*Catalog, error) {
	return Parse(embedded)
}

// MustLoad is Load for process start-up, where a broken catalog is fatal.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

// Parse builds a catalog from YAML and validates every identifier.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(doc.Tables) == 0 {
		return nil, fmt.Errorf("catalog defines no tables")
	}
	c := &Catalog{byName: make(map[string]*Table, len(doc.Tables))}
	for _, t := range doc.Tables {
		if err := prepare(t); err != nil {
			return nil, err
		}
		if _, dup := c.byName[t.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate table %q", t.Name)
		}
		c.byName[t.Name] = t
		c.tables = append(c.tables, t)
	}
	return c, nil
}

func prepare(t *Table) error {
	if !identifier.MatchString(t.Name) {
		return fmt.Errorf("catalog: invalid table name %q", t.Name)
	}
	if t.Label == "" {
		t.Label = t.Name
	}
	t.index = make(map[string]int, len(t.Columns))
	for i := range t.Columns {
		col := &t.Columns[i]
		if !identifier.MatchString(col.Name) {
			return fmt.Errorf("catalog: table %s: invalid column name %q", t.Name, col.Name)
		}
		if !col.Type.valid() {
			return fmt.Errorf("catalog: table %s: column %s: unknown type %q", t.Name, col.Name, col.Type)
		}
		if _, dup := t.index[col.Name]; dup {
			return fmt.Errorf("catalog: table %s: duplicate column %q", t.Name, col.Name)
		}
		if col.Label == "" {
			col.Label = col.Name
		}
		t.index[col.Name] = i
	}
	key, ok := t.Column(KeyColumn)
	if !ok || key.Type != TypeInteger {
		return fmt.Errorf("catalog: table %s must declare an integer %q column", t.Name, KeyColumn)
	}
	return nil
}

// Table looks up a table by name.
func (c *Catalog) Table(name string) (*Table, bool) {
	t, ok := c.byName[name]
	return t, ok
}

// Tables lists tables in catalog order.
func (c *Catalog) Tables() []*Table {
	out := make([]*Table, len(c.tables))
	copy(out, c.tables)
	return out
}

// DatasetDDL renders CREATE TABLE statements for every non-core table.
func (c *Catalog) DatasetDDL(d database.Dialect) []string {
	var stmts []string
	for _, t := range c.tables {
		if t.Core {
			continue
		}
		defs := []string{d.PrimaryKey()}
		for _, col := range t.Columns {
			if col.Name == KeyColumn {
				continue
			}
			defs = append(defs, col.Name+" "+d.Type(ddlKind(col.Type)))
		}
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", t.Name, strings.Join(defs, ",\n\t")))
	}
	return stmts
}

func ddlKind(t SemanticType) string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeNumeric:
		return "numeric"
	default:
		return "text"
	}
}
