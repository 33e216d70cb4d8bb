package schema

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed flowmeter.yaml
var defaultSchema []byte

var (
	identPattern  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	timingPattern = regexp.MustCompile(`(?i)^(BEFORE|AFTER|INSTEAD OF)\s+(INSERT|DELETE|UPDATE(\s+OF\s+[A-Za-z_][A-Za-z0-9_]*(\s*,\s*[A-Za-z_][A-Za-z0-9_]*)*)?)$`)
)

// SchemaError reports a missing or invalid schema definition
type SchemaError struct {
	Source string
	Reason string
	Err    error
}

func (e *SchemaError) Error() string {
	msg := fmt.Sprintf("schema %s: %s", e.Source, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// Schema is the declarative storage layout
type Schema struct {
	Database Definition `yaml:"database"`

	source string
}

// Definition lists the tables, views and named statements of a database
type Definition struct {
	Tables     []Table           `yaml:"tables"`
	Views      []View            `yaml:"views"`
	Statements map[string]string `yaml:"statements"`
}

// Table describes one table and the triggers attached to it
type Table struct {
	Name              string             `yaml:"name"`
	Columns           []Column           `yaml:"columns"`
	UniqueConstraints []UniqueConstraint `yaml:"unique_constraints,omitempty"`
	Triggers          []Trigger          `yaml:"triggers,omitempty"`
}

// Column describes a table column
type Column struct {
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"`
	Constraints []string `yaml:"constraints,omitempty"`
}

// UniqueConstraint lists columns that are unique together
type UniqueConstraint struct {
	Columns []string `yaml:"columns"`
}

// Trigger is a row-level trigger; Timing is e.g. "BEFORE INSERT"
type Trigger struct {
	Name   string `yaml:"name"`
	Timing string `yaml:"timing"`
	Body   string `yaml:"body"`
}

// View is a named SELECT
type View struct {
	Name       string `yaml:"name"`
	Definition string `yaml:"definition"`
}

// RequiredStatements are the named statements the storage gateway executes
var RequiredStatements = []string{
	"insert_electricity_reading",
	"last_electricity_reading",
	"all_electricity_readings",
	"delete_electricity_reading",
	"insert_gas_reading",
	"last_gas_reading",
	"all_gas_readings",
	"delete_gas_reading",
	"delete_all_readings",
	"upsert_provider",
	"get_provider",
	"all_providers",
	"delete_provider",
}

// Default returns the schema compiled into the binary
func Default() (*Schema, error) {
	return parse("embedded", defaultSchema)
}

// Load reads and validates the schema file at path
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &SchemaError{Source: path, Reason: "reading schema file", Err: err}
	}
	return parse(path, data)
}

// Parse decodes and validates a schema from YAML
func Parse(data []byte) (*Schema, error) {
	return parse("inline", data)
}

func parse(source string, data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, &SchemaError{Source: source, Reason: "parsing schema", Err: err}
	}
	s.source = source
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Source returns where the schema was loaded from
func (s *Schema) Source() string {
	return s.source
}

// Validate checks the definition for structural problems
func (s *Schema) Validate() error {
	fail := func(format string, args ...any) error {
		return &SchemaError{Source: s.source, Reason: fmt.Sprintf(format, args...)}
	}

	if len(s.Database.Tables) == 0 {
		return fail("no tables defined")
	}

	names := make(map[string]bool)
	claim := func(what, name string) error {
		if name == "" {
			return fail("%s without a name", what)
		}
		if !identPattern.MatchString(name) {
			return fail("invalid %s name %q", what, name)
		}
		key := strings.ToLower(name)
		if names[key] {
			return fail("duplicate object name %q", name)
		}
		names[key] = true
		return nil
	}

	for _, t := range s.Database.Tables {
		if err := claim("table", t.Name); err != nil {
			return err
		}
		if len(t.Columns) == 0 {
			return fail("table %s has no columns", t.Name)
		}

		columns := make(map[string]bool, len(t.Columns))
		for _, c := range t.Columns {
			if c.Name == "" || c.Type == "" {
				return fail("table %s has a column without name or type", t.Name)
			}
			if !identPattern.MatchString(c.Name) {
				return fail("table %s: invalid column name %q", t.Name, c.Name)
			}
			if columns[strings.ToLower(c.Name)] {
				return fail("table %s: duplicate column %q", t.Name, c.Name)
			}
			columns[strings.ToLower(c.Name)] = true
		}

		for _, u := range t.UniqueConstraints {
			if len(u.Columns) == 0 {
				return fail("table %s has an empty unique constraint", t.Name)
			}
			for _, col := range u.Columns {
				if !columns[strings.ToLower(col)] {
					return fail("table %s: unique constraint on unknown column %q", t.Name, col)
				}
			}
		}

		for _, tr := range t.Triggers {
			if err := claim("trigger", tr.Name); err != nil {
				return err
			}
			if !timingPattern.MatchString(strings.TrimSpace(tr.Timing)) {
				return fail("trigger %s: invalid timing %q", tr.Name, tr.Timing)
			}
			if strings.TrimSpace(tr.Body) == "" {
				return fail("trigger %s has no body", tr.Name)
			}
		}
	}

	for _, v := range s.Database.Views {
		if err := claim("view", v.Name); err != nil {
			return err
		}
		if strings.TrimSpace(v.Definition) == "" {
			return fail("view %s has no definition", v.Name)
		}
	}

	var missing []string
	for _, name := range RequiredStatements {
		if strings.TrimSpace(s.Database.Statements[name]) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fail("missing statements: %s", strings.Join(missing, ", "))
	}

	return nil
}

// Statement returns the named SQL statement
func (s *Schema) Statement(name string) (string, error) {
	sql, ok := s.Database.Statements[name]
	if !ok || strings.TrimSpace(sql) == "" {
		return "", &SchemaError{Source: s.source, Reason: fmt.Sprintf("unknown statement %q", name)}
	}
	return sql, nil
}

// Objects returns the names of all declared tables followed by all views
func (s *Schema) Objects() []string {
	objects := make([]string, 0, len(s.Database.Tables)+len(s.Database.Views))
	for _, t := range s.Database.Tables {
		objects = append(objects, t.Name)
	}
	for _, v := range s.Database.Views {
		objects = append(objects, v.Name)
	}
	return objects
}

// DDL returns the statements that create every table, then every trigger,
// then every view
func (s *Schema) DDL() []string {
	var stmts []string
	for _, t := range s.Database.Tables {
		stmts = append(stmts, t.CreateSQL())
	}
	for _, t := range s.Database.Tables {
		stmts = append(stmts, t.TriggerSQL()...)
	}
	for _, v := range s.Database.Views {
		stmts = append(stmts, v.CreateSQL())
	}
	return stmts
}

// CreateSQL renders the CREATE TABLE statement
func (t Table) CreateSQL() string {
	defs := make([]string, 0, len(t.Columns)+len(t.UniqueConstraints))
	for _, c := range t.Columns {
		def := c.Name + " " + c.Type
		if len(c.Constraints) > 0 {
			def += " " + strings.Join(c.Constraints, " ")
		}
		defs = append(defs, def)
	}
	for _, u := range t.UniqueConstraints {
		defs = append(defs, fmt.Sprintf("UNIQUE (%s)", strings.Join(u.Columns, ", ")))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);", t.Name, strings.Join(defs, ", "))
}

// TriggerSQL renders the CREATE TRIGGER statements of the table
func (t Table) TriggerSQL() []string {
	stmts := make([]string, 0, len(t.Triggers))
	for _, tr := range t.Triggers {
		body := strings.TrimSpace(tr.Body)
		if !strings.HasSuffix(body, ";") {
			body += ";"
		}
		stmts = append(stmts, fmt.Sprintf("CREATE TRIGGER IF NOT EXISTS %s %s ON %s FOR EACH ROW BEGIN %s END;",
			tr.Name, strings.TrimSpace(tr.Timing), t.Name, body))
	}
	return stmts
}

// CreateSQL renders the CREATE VIEW statement
func (v View) CreateSQL() string {
	return fmt.Sprintf("CREATE VIEW IF NOT EXISTS %s AS %s;", v.Name, strings.TrimSuffix(strings.TrimSpace(v.Definition), ";"))
}
