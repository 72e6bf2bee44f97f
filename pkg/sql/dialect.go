package sql

import (
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	mssql "github.com/microsoft/go-mssqldb"

	"github.com/ekaya-inc/ekaya-seed/pkg/models"
)

// QuoteIdentifier quotes a table or column name in the dialect's canonical
// style: backticks for MySQL, double quotes for PostgreSQL, brackets for
// SQL Server.
func QuoteIdentifier(d models.Dialect, name string) string {
	switch d {
	case models.DialectPostgreSQL:
		return pgx.Identifier{name}.Sanitize()
	case models.DialectSQLServer:
		return mssql.TSQLQuoter{}.ID(name)
	default:
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
}

// QuoteString renders s as a string literal. Single quotes are doubled in
// every dialect; MySQL also doubles backslashes and SQL Server uses N'...'.
func QuoteString(d models.Dialect, s string) string {
	switch d {
	case models.DialectSQLServer:
		return "N" + mssql.TSQLQuoter{}.Value(s)
	case models.DialectMySQL:
		return "'" + strings.ReplaceAll(escapeStringLiteral(s), `\`, `\\`) + "'"
	default:
		return "'" + escapeStringLiteral(s) + "'"
	}
}

// backslashEscapes reports whether plain '...' literals treat backslash as an
// escape character. Only MySQL does; PostgreSQL needs an E'...' prefix.
func backslashEscapes(d models.Dialect) bool {
	return d == models.DialectMySQL
}

func escapeStringLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// BoolLiteral renders b as TRUE/FALSE, or 1/0 for SQL Server's BIT.
func BoolLiteral(d models.Dialect, b bool) string {
	if d == models.DialectSQLServer {
		if b {
			return "1"
		}
		return "0"
	}
	if b {
		return "TRUE"
	}
	return "FALSE"
}

// IDLiteral renders a primary or foreign key: bare integers in autoincrement
// mode, quoted lowercase UUIDs otherwise.
func IDLiteral(mode models.IDMode, id string) string {
	if mode == models.IDModeAutoincrement {
		return id
	}
	return "'" + escapeStringLiteral(strings.ToLower(id)) + "'"
}

// IntLiteral renders an integer column value.
func IntLiteral(n int64) string {
	return strconv.FormatInt(n, 10)
}
