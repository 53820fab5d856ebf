package client

import (
	"fmt"
	"strconv"
	"strings"
)

// SQLFormatter substitutes args into a SQL template. Parameter marshalling
// beyond textual interpolation is an explicit Non-goal (spec.md §1); this
// is the named seam for a caller that needs prepared-statement semantics
// to plug one in. Grounded on the teacher's client/query.go parameter
// helpers (convertToString, escapeParameterValue), stripped of the
// PREPARE/EXECUTE/DEALLOCATE wire protocol those helpers served.
type SQLFormatter interface {
	Format(sql string, args ...interface{}) (string, error)
}

// textualFormatter replaces each "?" placeholder, in order, with args'
// textual form; string arguments are single-quote escaped.
type textualFormatter struct{}

// DefaultSQLFormatter is the textual-interpolation SQLFormatter a Session
// uses unless the caller supplies one of its own.
var DefaultSQLFormatter SQLFormatter = textualFormatter{}

// Format implements SQLFormatter.
func (textualFormatter) Format(sql string, args ...interface{}) (string, error) {
	if len(args) == 0 {
		return sql, nil
	}

	var b strings.Builder
	argIdx := 0
	for i := 0; i < len(sql); i++ {
		if sql[i] != '?' {
			b.WriteByte(sql[i])
			continue
		}
		if argIdx >= len(args) {
			return "", NewValidationError(fmt.Sprintf("sql formatter: not enough arguments for placeholder %d", argIdx+1))
		}
		b.WriteString(formatValue(args[argIdx]))
		argIdx++
	}
	if argIdx != len(args) {
		return "", NewValidationError(fmt.Sprintf("sql formatter: %d arguments supplied, %d placeholders found", len(args), argIdx))
	}
	return b.String(), nil
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + escapeSingleQuotes(val) + "'"
	case bool:
		if val {
			return "1"
		}
		return "0"
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return "'" + escapeSingleQuotes(fmt.Sprintf("%v", val)) + "'"
	}
}

func escapeSingleQuotes(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
