// Package sql validates and normalizes model-generated seed scripts.
package sql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-seed/pkg/identity"
	"github.com/ekaya-inc/ekaya-seed/pkg/logging"
	"github.com/ekaya-inc/ekaya-seed/pkg/models"
)

// ValidationReport is the outcome of validating one model response. Script
// and Statements are set only when Defects is empty.
type ValidationReport struct {
	Script     string
	Statements []string
	Defects    []models.Defect
	Rows       int // rows accepted by the shape check
}

// OK reports whether the response produced a script.
func (r *ValidationReport) OK() bool {
	return len(r.Defects) == 0 && r.Script != ""
}

func (r *ValidationReport) add(d models.Defect) {
	r.Defects = append(r.Defects, d)
}

// Count returns the number of defects of the given kind.
func (r *ValidationReport) Count(kind models.DefectKind) int {
	n := 0
	for _, d := range r.Defects {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

// cell is a typed column value taken from a VALUES row.
type cell struct {
	null bool
	text string // canonical id, or string content
	b    bool
	n    int64
}

// seedRow is one VALUES tuple mapped onto its seed table.
type seedRow struct {
	table    models.SeedTable
	cells    map[string]cell // keyed by schema column name
	line     int
	snippet  string
	ref      models.Ref
	assigned bool
}

// SeedValidator checks model output against the identifiers of one run and
// renders the accepted rows in the dialect's canonical form.
type SeedValidator struct {
	dialect    models.Dialect
	assignment *identity.Assignment
}

// NewSeedValidator creates a validator for one run.
func NewSeedValidator(dialect models.Dialect, assignment *identity.Assignment) *SeedValidator {
	return &SeedValidator{dialect: dialect, assignment: assignment}
}

// Validate segments, parses and checks response. Any defect withholds the
// whole script.
func (v *SeedValidator) Validate(response string) *ValidationReport {
	report := &ValidationReport{}
	extracted := extractResponse(response)

	// Fences and blank lines around an envelope are fine; anything else is not.
	for _, out := range extracted.outside {
		for _, seg := range segmentText(out.text, v.dialect) {
			report.add(models.Defect{
				Kind:    models.DefectUnparseableFragment,
				Line:    out.line + seg.line - 1,
				Snippet: logging.SanitizeSnippet(seg.text),
				Message: "text outside the full_sql envelope",
			})
		}
	}

	var rows []*seedRow
	for _, seg := range segmentText(extracted.sql, v.dialect) {
		if seg.kind == segmentFragment {
			report.add(models.Defect{
				Kind:    models.DefectUnparseableFragment,
				Line:    seg.line,
				Snippet: logging.SanitizeSnippet(seg.text),
				Message: "text is not an INSERT statement",
			})
			continue
		}
		stmt, err := parseInsert(seg.text, v.dialect)
		if err != nil {
			report.add(models.Defect{
				Kind:    models.DefectUnparseableFragment,
				Line:    seg.line,
				Snippet: logging.SanitizeSnippet(seg.text),
				Message: fmt.Sprintf("cannot parse INSERT: %v", err),
			})
			continue
		}
		rows = append(rows, v.checkShape(stmt, seg, report)...)
	}
	report.Rows = len(rows)

	v.checkKeys(rows, report)
	if len(report.Defects) > 0 {
		return report
	}

	statements, err := newRenderer(v.dialect, v.assignment).render(rows)
	if err != nil {
		report.add(models.Defect{
			Kind:    models.DefectShapeMismatch,
			Message: fmt.Sprintf("cannot render script: %v", err),
		})
		return report
	}
	report.Statements = statements
	report.Script = strings.Join(statements, "\n") + "\n"
	return report
}

// checkShape maps a statement onto its seed table and converts every value.
// Rows whose values do not fit are reported and only kept when their
// primary key could still be read, so key checks do not double-report.
func (v *SeedValidator) checkShape(stmt *insertStatement, seg segment, report *ValidationReport) []*seedRow {
	table, ok := models.LookupSeedTable(stmt.table)
	if !ok {
		report.add(models.Defect{
			Kind:    models.DefectShapeMismatch,
			Table:   stmt.table,
			Line:    seg.line,
			Snippet: logging.SanitizeSnippet(seg.text),
			Message: fmt.Sprintf("%q is not a seed table", stmt.table),
		})
		return nil
	}

	columns, ok := v.resolveColumns(table, stmt.columns, seg, report)
	if !ok {
		return nil
	}

	var rows []*seedRow
	for _, r := range stmt.rows {
		line := seg.line + strings.Count(seg.text[:r.offset], "\n")
		snippet := logging.SanitizeSnippet(firstLine(seg.text[r.offset:]))

		if len(r.values) != len(columns) {
			report.add(models.Defect{
				Kind:    models.DefectShapeMismatch,
				Table:   table.Name,
				Line:    line,
				Snippet: snippet,
				Message: fmt.Sprintf("%d values for %d columns", len(r.values), len(columns)),
			})
			continue
		}

		row := &seedRow{table: table, cells: make(map[string]cell), line: line, snippet: snippet}
		for i, col := range columns {
			c, err := v.convert(col, r.values[i])
			if err != nil {
				report.add(models.Defect{
					Kind:    models.DefectShapeMismatch,
					Table:   table.Name,
					Column:  col.Name,
					Value:   logging.SanitizeSnippet(r.values[i].value),
					Line:    line,
					Snippet: snippet,
					Message: err.Error(),
				})
				continue
			}
			row.cells[col.Name] = c
		}
		if _, hasID := row.cells["id"]; hasID {
			rows = append(rows, row)
		}
	}
	return rows
}

// resolveColumns maps the statement's column list onto the schema. A missing
// list means all columns in schema order.
func (v *SeedValidator) resolveColumns(table models.SeedTable, names []string, seg segment, report *ValidationReport) ([]models.SeedColumn, bool) {
	if names == nil {
		return table.Columns, true
	}

	mismatch := func(column, msg string) {
		report.add(models.Defect{
			Kind:    models.DefectShapeMismatch,
			Table:   table.Name,
			Column:  column,
			Line:    seg.line,
			Snippet: logging.SanitizeSnippet(seg.text),
			Message: msg,
		})
	}

	ok := true
	seen := make(map[string]bool)
	columns := make([]models.SeedColumn, 0, len(names))
	for _, name := range names {
		col, found := table.Column(name)
		if !found {
			mismatch(name, fmt.Sprintf("%s has no column %q", table.Name, name))
			ok = false
			continue
		}
		if seen[col.Name] {
			mismatch(col.Name, fmt.Sprintf("column %q is listed twice", col.Name))
			ok = false
			continue
		}
		seen[col.Name] = true
		columns = append(columns, col)
	}
	for _, col := range table.Columns {
		if !seen[col.Name] && !col.Nullable && ok {
			mismatch(col.Name, fmt.Sprintf("required column %q is missing", col.Name))
			ok = false
		}
	}
	return columns, ok
}

// convert checks that a literal fits its column and returns its typed value.
func (v *SeedValidator) convert(col models.SeedColumn, lit literal) (cell, error) {
	if lit.kind == litExpr {
		return cell{}, fmt.Errorf("%s: expression %s is not allowed, write a literal", col.Name, lit.value)
	}
	if lit.kind == litNull {
		if col.Nullable {
			return cell{null: true}, nil
		}
		return cell{}, fmt.Errorf("%s must not be NULL", col.Name)
	}

	switch col.Kind {
	case models.ColumnID, models.ColumnForeignKey:
		return v.convertID(col, lit)
	case models.ColumnText:
		if lit.kind != litString {
			return cell{}, fmt.Errorf("%s expects a string, got %s", col.Name, lit.kind)
		}
		return cell{text: lit.value}, nil
	case models.ColumnInt:
		if lit.kind != litNumber && lit.kind != litString {
			return cell{}, fmt.Errorf("%s expects an integer, got %s", col.Name, lit.kind)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(lit.value), 10, 64)
		if err != nil {
			return cell{}, fmt.Errorf("%s expects an integer, got %q", col.Name, lit.value)
		}
		return cell{n: n}, nil
	case models.ColumnBool:
		b, ok := parseBool(lit)
		if !ok {
			return cell{}, fmt.Errorf("%s expects a boolean, got %q", col.Name, lit.value)
		}
		return cell{b: b}, nil
	}
	return cell{}, fmt.Errorf("%s has unknown kind %q", col.Name, col.Kind)
}

func (v *SeedValidator) convertID(col models.SeedColumn, lit literal) (cell, error) {
	if v.assignment.Mode() == models.IDModeAutoincrement {
		if lit.kind != litNumber && lit.kind != litString {
			return cell{}, fmt.Errorf("%s expects an integer id, got %s", col.Name, lit.kind)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(lit.value), 10, 64)
		if err != nil {
			return cell{}, fmt.Errorf("%s expects an integer id, got %q", col.Name, lit.value)
		}
		return cell{text: strconv.FormatInt(n, 10)}, nil
	}

	if lit.kind != litString {
		return cell{}, fmt.Errorf("%s expects a quoted UUID, got %s", col.Name, lit.kind)
	}
	u, err := uuid.Parse(strings.TrimSpace(lit.value))
	if err != nil {
		return cell{}, fmt.Errorf("%s expects a UUID, got %q", col.Name, lit.value)
	}
	return cell{text: u.String()}, nil
}

func parseBool(lit literal) (bool, bool) {
	switch lit.kind {
	case litBool:
		return lit.value == "TRUE", true
	case litNumber, litString:
		switch strings.ToLower(strings.TrimSpace(lit.value)) {
		case "1", "true", "t":
			return true, true
		case "0", "false", "f":
			return false, true
		}
	}
	return false, false
}

// checkKeys runs the uniqueness, assignment and referential checks, then
// reports every assigned entity that has no row.
func (v *SeedValidator) checkKeys(rows []*seedRow, report *ValidationReport) {
	a := v.assignment
	seen := make(map[models.EntityType]map[string]int)
	for _, t := range models.EntityTypes {
		seen[t] = make(map[string]int)
	}

	for _, row := range rows {
		t := row.table.Entity
		id := row.cells["id"].text

		if prev, dup := seen[t][id]; dup {
			report.add(models.Defect{
				Kind:    models.DefectDuplicateKey,
				Table:   row.table.Name,
				Column:  "id",
				Value:   id,
				Line:    row.line,
				Snippet: row.snippet,
				Message: fmt.Sprintf("id %s already inserted at line %d", id, prev),
			})
			continue
		}
		seen[t][id] = row.line

		ref, ok := a.Lookup(t, id)
		if !ok {
			report.add(models.Defect{
				Kind:    models.DefectUnassignedKey,
				Table:   row.table.Name,
				Column:  "id",
				Value:   id,
				Line:    row.line,
				Snippet: row.snippet,
				Message: fmt.Sprintf("id %s was not assigned to any %s", id, t),
			})
		} else {
			row.ref = ref
			row.assigned = true
		}

		v.checkReference(row, report)
	}

	for _, t := range models.EntityTypes {
		for _, id := range a.IDs(t) {
			if _, ok := seen[t][id]; ok {
				continue
			}
			report.add(models.Defect{
				Kind:    models.DefectMissingRow,
				Table:   models.TableName(t),
				Column:  "id",
				Value:   id,
				Message: fmt.Sprintf("no row inserted for %s %s", t, id),
			})
		}
	}
}

// checkReference verifies the foreign key resolves to an assigned parent and,
// when the row itself is assigned, to that row's own parent.
func (v *SeedValidator) checkReference(row *seedRow, report *ValidationReport) {
	parentType, ok := row.table.Entity.Parent()
	if !ok {
		return
	}
	fkCol := foreignKeyColumn(row.table)
	fk, ok := row.cells[fkCol]
	if !ok {
		return
	}

	dangling := func(msg string) {
		report.add(models.Defect{
			Kind:    models.DefectDanglingReference,
			Table:   row.table.Name,
			Column:  fkCol,
			Value:   fk.text,
			Line:    row.line,
			Snippet: row.snippet,
			Message: msg,
		})
	}

	parentRef, found := v.assignment.Lookup(parentType, fk.text)
	if !found {
		dangling(fmt.Sprintf("%s %s does not reference an assigned %s", fkCol, fk.text, parentType))
		return
	}
	if !row.assigned {
		return
	}
	if expected, ok := v.assignment.Run().Parent(row.ref); ok && expected != parentRef {
		want, _ := v.assignment.ID(expected)
		dangling(fmt.Sprintf("%s %s references the wrong %s, expected %s", fkCol, fk.text, parentType, want))
	}
}

func foreignKeyColumn(table models.SeedTable) string {
	for _, c := range table.Columns {
		if c.Kind == models.ColumnForeignKey {
			return c.Name
		}
	}
	return ""
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
