package models

import (
	"strings"

	"github.com/jinzhu/inflection"
)

// ColumnKind is the logical type of a seed table column.
type ColumnKind string

const (
	ColumnID         ColumnKind = "id"
	ColumnForeignKey ColumnKind = "fk"
	ColumnText       ColumnKind = "text"
	ColumnInt        ColumnKind = "int"
	ColumnBool       ColumnKind = "bool"
)

// SeedColumn describes one column of a seed table.
type SeedColumn struct {
	Name       string
	Kind       ColumnKind
	Nullable   bool
	References EntityType // set for ColumnForeignKey
}

// SeedTable describes the table that stores one entity type.
type SeedTable struct {
	Entity  EntityType
	Name    string
	Columns []SeedColumn
}

// TableName returns the table that stores entities of type t.
func TableName(t EntityType) string {
	return inflection.Plural(string(t))
}

var seedSchema = []SeedTable{
	{
		Entity: EntityJobPosition,
		Name:   TableName(EntityJobPosition),
		Columns: []SeedColumn{
			{Name: "id", Kind: ColumnID},
			{Name: "title", Kind: ColumnText},
			{Name: "description", Kind: ColumnText, Nullable: true},
		},
	},
	{
		Entity: EntityQuestionBank,
		Name:   TableName(EntityQuestionBank),
		Columns: []SeedColumn{
			{Name: "id", Kind: ColumnID},
			{Name: "job_position_id", Kind: ColumnForeignKey, References: EntityJobPosition},
			{Name: "name", Kind: ColumnText},
			{Name: "level", Kind: ColumnText},
		},
	},
	{
		Entity: EntityQuestion,
		Name:   TableName(EntityQuestion),
		Columns: []SeedColumn{
			{Name: "id", Kind: ColumnID},
			{Name: "question_bank_id", Kind: ColumnForeignKey, References: EntityQuestionBank},
			{Name: "text", Kind: ColumnText},
			{Name: "position", Kind: ColumnInt},
		},
	},
	{
		Entity: EntityOption,
		Name:   TableName(EntityOption),
		Columns: []SeedColumn{
			{Name: "id", Kind: ColumnID},
			{Name: "question_id", Kind: ColumnForeignKey, References: EntityQuestion},
			{Name: "text", Kind: ColumnText},
			{Name: "is_correct", Kind: ColumnBool},
			{Name: "position", Kind: ColumnInt},
		},
	},
}

// SeedSchema returns the fixed target schema, parents first.
func SeedSchema() []SeedTable {
	out := make([]SeedTable, len(seedSchema))
	for i, t := range seedSchema {
		cols := make([]SeedColumn, len(t.Columns))
		copy(cols, t.Columns)
		out[i] = SeedTable{Entity: t.Entity, Name: t.Name, Columns: cols}
	}
	return out
}

// SeedTableFor returns the schema of the table storing entity type t.
func SeedTableFor(t EntityType) (SeedTable, bool) {
	for _, tbl := range SeedSchema() {
		if tbl.Entity == t {
			return tbl, true
		}
	}
	return SeedTable{}, false
}

// LookupSeedTable finds a seed table by name, case-insensitively.
func LookupSeedTable(name string) (SeedTable, bool) {
	for _, tbl := range SeedSchema() {
		if strings.EqualFold(tbl.Name, name) {
			return tbl, true
		}
	}
	return SeedTable{}, false
}

// Column returns the named column, case-insensitively.
func (t SeedTable) Column(name string) (SeedColumn, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return SeedColumn{}, false
}

// ColumnNames returns the column names in canonical order.
func (t SeedTable) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// SQLType returns the column type as written in DDL for the given dialect
// and identifier mode.
func (c SeedColumn) SQLType(d Dialect, mode IDMode) string {
	switch c.Kind {
	case ColumnID:
		if mode == IDModeAutoincrement {
			switch d {
			case DialectPostgreSQL:
				return "SERIAL"
			case DialectSQLServer:
				return "INT IDENTITY(1,1)"
			default:
				return "INT AUTO_INCREMENT"
			}
		}
		return uuidType(d)
	case ColumnForeignKey:
		if mode == IDModeAutoincrement {
			if d == DialectPostgreSQL {
				return "INTEGER"
			}
			return "INT"
		}
		return uuidType(d)
	case ColumnText:
		switch d {
		case DialectPostgreSQL:
			return "TEXT"
		case DialectSQLServer:
			return "NVARCHAR(MAX)"
		default:
			if c.Name == "description" || c.Name == "text" {
				return "TEXT"
			}
			return "VARCHAR(255)"
		}
	case ColumnInt:
		if d == DialectPostgreSQL {
			return "INTEGER"
		}
		return "INT"
	case ColumnBool:
		switch d {
		case DialectPostgreSQL:
			return "BOOLEAN"
		case DialectSQLServer:
			return "BIT"
		default:
			return "TINYINT(1)"
		}
	}
	return ""
}

func uuidType(d Dialect) string {
	switch d {
	case DialectPostgreSQL:
		return "UUID"
	case DialectSQLServer:
		return "UNIQUEIDENTIFIER"
	default:
		return "CHAR(36)"
	}
}
