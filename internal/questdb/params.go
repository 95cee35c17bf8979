//
// Date: 2026-02-15
// Copyright (c) 2026. All rights reserved.
//

package questdb

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// timestampLayout is the ISO-8601 UTC form QuestDB accepts for designated
// timestamp literals, with microsecond precision.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

// RenderQuery substitutes $1..$N placeholders in the SQL template with the
// escaped literal form of the corresponding parameter. The template is
// walked once left to right: a "$" followed by a maximal run of digits is
// a placeholder token, so "$10" is always index ten and never "$1"
// followed by "0". A "$" with no following digit passes through unchanged.
// Placeholder indexes are 1-based; an index past the parameter list is an
// error. With no parameters at all the template is returned unchanged,
// placeholders included.
func RenderQuery(sql string, params []interface{}) (string, error) {
	if len(params) == 0 {
		return sql, nil
	}

	var b strings.Builder
	b.Grow(len(sql))

	for i := 0; i < len(sql); i++ {
		c := sql[i]
		if c != '$' {
			b.WriteByte(c)
			continue
		}

		// Collect the maximal digit run after the dollar sign.
		j := i + 1
		for j < len(sql) && sql[j] >= '0' && sql[j] <= '9' {
			j++
		}

		if j == i+1 {
			// Bare "$" with no index; not a placeholder.
			b.WriteByte(c)
			continue
		}

		idx, err := strconv.Atoi(sql[i+1 : j])
		if err != nil || idx < 1 || idx > len(params) {
			return "", fmt.Errorf("questdb: placeholder $%s out of range for %d params", sql[i+1:j], len(params))
		}

		lit, err := formatLiteral(params[idx-1])
		if err != nil {
			return "", err
		}

		b.WriteString(lit)
		i = j - 1
	}

	return b.String(), nil
}

// Literal renders a single value as a SQL literal using the same rules as
// placeholder substitution. Used by callers that assemble multi-VALUES
// statements for BulkExec.
func Literal(v interface{}) (string, error) {
	return formatLiteral(v)
}

// formatLiteral renders a single parameter value as a SQL literal.
// Strings are single-quoted with embedded quotes doubled, nil becomes
// NULL, times become quoted ISO-8601 UTC strings, and numbers and
// booleans use their canonical textual form.
func formatLiteral(v interface{}) (string, error) {
	switch t := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		return quoteString(t), nil
	case time.Time:
		return quoteString(t.UTC().Format(timestampLayout)), nil
	case *time.Time:
		if t == nil {
			return "NULL", nil
		}
		return quoteString(t.UTC().Format(timestampLayout)), nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int32:
		return strconv.FormatInt(int64(t), 10), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("questdb: unsupported parameter type %T", v)
	}
}

// quoteString single-quotes a string literal, doubling any embedded
// single quotes.
func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
