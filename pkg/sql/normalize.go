package sql

import (
	"fmt"
	"sort"

	sq "github.com/Masterminds/squirrel"

	"github.com/ekaya-inc/ekaya-seed/pkg/identity"
	"github.com/ekaya-inc/ekaya-seed/pkg/models"
)

// sqlServerMaxRows is the row limit of a T-SQL table value constructor.
const sqlServerMaxRows = 1000

// renderer writes accepted rows as canonical INSERT statements.
type renderer struct {
	dialect    models.Dialect
	assignment *identity.Assignment
}

func newRenderer(d models.Dialect, a *identity.Assignment) *renderer {
	return &renderer{dialect: d, assignment: a}
}

// render emits one multi-row INSERT per table, parents first, rows in
// assignment order. Autoincrement scripts get the statements each dialect
// needs to accept explicit ids.
func (r *renderer) render(rows []*seedRow) ([]string, error) {
	byTable := make(map[models.EntityType][]*seedRow)
	for _, row := range rows {
		byTable[row.table.Entity] = append(byTable[row.table.Entity], row)
	}

	var out []string
	for _, table := range models.SeedSchema() {
		tableRows := byTable[table.Entity]
		if len(tableRows) == 0 {
			continue
		}
		sort.SliceStable(tableRows, func(i, j int) bool {
			return r.assignment.Sequence(tableRows[i].ref) < r.assignment.Sequence(tableRows[j].ref)
		})

		stmts, err := r.tableStatements(table, tableRows)
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", table.Name, err)
		}
		out = append(out, r.before(table)...)
		out = append(out, stmts...)
		out = append(out, r.after(table)...)
	}
	return out, nil
}

func (r *renderer) tableStatements(table models.SeedTable, rows []*seedRow) ([]string, error) {
	columns := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		columns[i] = QuoteIdentifier(r.dialect, c.Name)
	}

	chunk := len(rows)
	if r.dialect == models.DialectSQLServer && chunk > sqlServerMaxRows {
		chunk = sqlServerMaxRows
	}

	var out []string
	for start := 0; start < len(rows); start += chunk {
		end := min(start+chunk, len(rows))
		builder := sq.Insert(QuoteIdentifier(r.dialect, table.Name)).Columns(columns...)
		for _, row := range rows[start:end] {
			values := make([]any, len(table.Columns))
			for i, c := range table.Columns {
				v, present := row.cells[c.Name]
				values[i] = sq.Expr(r.literal(c, v, present))
			}
			builder = builder.Values(values...)
		}
		query, _, err := builder.ToSql()
		if err != nil {
			return nil, err
		}
		out = append(out, query+";")
	}
	return out, nil
}

// literal renders a cell. A column the statement omitted is NULL.
func (r *renderer) literal(col models.SeedColumn, c cell, present bool) string {
	if c.null || !present {
		return "NULL"
	}
	switch col.Kind {
	case models.ColumnID, models.ColumnForeignKey:
		return IDLiteral(r.assignment.Mode(), c.text)
	case models.ColumnInt:
		return IntLiteral(c.n)
	case models.ColumnBool:
		return BoolLiteral(r.dialect, c.b)
	}
	return QuoteString(r.dialect, c.text)
}

func (r *renderer) before(table models.SeedTable) []string {
	if r.assignment.Mode() != models.IDModeAutoincrement || r.dialect != models.DialectSQLServer {
		return nil
	}
	return []string{fmt.Sprintf("SET IDENTITY_INSERT %s ON;", QuoteIdentifier(r.dialect, table.Name))}
}

func (r *renderer) after(table models.SeedTable) []string {
	if r.assignment.Mode() != models.IDModeAutoincrement {
		return nil
	}
	name := QuoteIdentifier(r.dialect, table.Name)
	switch r.dialect {
	case models.DialectSQLServer:
		return []string{fmt.Sprintf("SET IDENTITY_INSERT %s OFF;", name)}
	case models.DialectPostgreSQL:
		id := QuoteIdentifier(r.dialect, "id")
		return []string{fmt.Sprintf("SELECT setval(pg_get_serial_sequence(%s, 'id'), (SELECT MAX(%s) FROM %s));",
			QuoteString(r.dialect, name), id, name)}
	}
	return nil
}
