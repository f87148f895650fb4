// Package sqlutil holds the small amount of SQL text handling the rest of the
// module needs: statement splitting for migration files and placeholder
// rebinding for dialects that do not understand "?".
//
// None of these functions parse SQL. They only track quoted strings,
// quoted identifiers and comments so that characters inside them are left
// alone.
package sqlutil

import (
	"strconv"
	"strings"
)

// Rebind rewrites every positional "?" placeholder outside string literals,
// quoted identifiers and comments into the numbered "$N" form.
func Rebind(query string) string {
	if !strings.Contains(query, "?") {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	scan(query, func(seg string, code bool) {
		if !code {
			b.WriteString(seg)
			return
		}
		for i := 0; i < len(seg); i++ {
			if seg[i] == '?' {
				n++
				b.WriteByte('$')
				b.WriteString(strconv.Itoa(n))
				continue
			}
			b.WriteByte(seg[i])
		}
	})
	return b.String()
}

// CountPlaceholders returns the number of "?" placeholders Rebind would
// rewrite.
func CountPlaceholders(query string) int {
	n := 0
	scan(query, func(seg string, code bool) {
		if code {
			n += strings.Count(seg, "?")
		}
	})
	return n
}

// StripComments removes "--" line comments and "/* */" block comments.
func StripComments(sql string) string {
	var b strings.Builder
	b.Grow(len(sql))
	scan(sql, func(seg string, code bool) {
		if code || !isComment(seg) {
			b.WriteString(seg)
			return
		}
		// keep line structure so error positions stay meaningful
		if strings.HasPrefix(seg, "--") && strings.HasSuffix(seg, "\n") {
			b.WriteByte('\n')
		}
	})
	return b.String()
}

// SplitSQLStatements splits a script on top-level semicolons. Empty
// statements are dropped and the rest are trimmed.
func SplitSQLStatements(sql string) []string {
	var (
		statements []string
		current    strings.Builder
	)
	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	scan(sql, func(seg string, code bool) {
		if !code {
			current.WriteString(seg)
			return
		}
		for {
			idx := strings.IndexByte(seg, ';')
			if idx < 0 {
				current.WriteString(seg)
				return
			}
			current.WriteString(seg[:idx])
			flush()
			seg = seg[idx+1:]
		}
	})
	flush()

	return statements
}

// IsInsert reports whether the statement starts with INSERT.
func IsInsert(query string) bool {
	return hasKeywordPrefix(query, "INSERT")
}

// HasReturning reports whether the statement already carries a RETURNING
// clause outside of literals.
func HasReturning(query string) bool {
	found := false
	scan(query, func(seg string, code bool) {
		if code && !found && containsWord(strings.ToUpper(seg), "RETURNING") {
			found = true
		}
	})
	return found
}

// AppendReturning adds a RETURNING clause for column to an INSERT statement.
// Comments and trailing semicolons are dropped first.
func AppendReturning(query, column string) string {
	q := strings.TrimRight(StripComments(query), " \t\r\n;")
	return q + " RETURNING " + column
}

func hasKeywordPrefix(query, keyword string) bool {
	q := strings.TrimLeft(StripComments(query), " \t\r\n(")
	if len(q) < len(keyword) {
		return false
	}
	return strings.EqualFold(q[:len(keyword)], keyword)
}

func containsWord(s, word string) bool {
	for {
		idx := strings.Index(s, word)
		if idx < 0 {
			return false
		}
		before := idx == 0 || !isIdentChar(s[idx-1])
		end := idx + len(word)
		after := end == len(s) || !isIdentChar(s[end])
		if before && after {
			return true
		}
		s = s[end:]
	}
}

func isIdentChar(ch byte) bool {
	return ch == '_' || ch >= '0' && ch <= '9' || ch >= 'A' && ch <= 'Z' || ch >= 'a' && ch <= 'z'
}

func isComment(seg string) bool {
	return strings.HasPrefix(seg, "--") || strings.HasPrefix(seg, "/*")
}

// scan walks the query and reports consecutive segments, flagging whether a
// segment is plain SQL code or a literal/identifier/comment.
func scan(query string, emit func(seg string, code bool)) {
	start := 0
	i := 0
	for i < len(query) {
		ch := query[i]
		var end int
		switch {
		case ch == '\'' || ch == '"' || ch == '`':
			end = quotedEnd(query, i, ch)
		case ch == '-' && i+1 < len(query) && query[i+1] == '-':
			end = strings.IndexByte(query[i:], '\n')
			if end < 0 {
				end = len(query)
			} else {
				end = i + end + 1
			}
		case ch == '/' && i+1 < len(query) && query[i+1] == '*':
			end = strings.Index(query[i+2:], "*/")
			if end < 0 {
				end = len(query)
			} else {
				end = i + 2 + end + 2
			}
		default:
			i++
			continue
		}
		if i > start {
			emit(query[start:i], true)
		}
		emit(query[i:end], false)
		i = end
		start = end
	}
	if start < len(query) {
		emit(query[start:], true)
	}
}

// quotedEnd returns the index just past the closing quote, treating a
// doubled quote as an escaped one.
func quotedEnd(query string, open int, quote byte) int {
	i := open + 1
	for i < len(query) {
		if query[i] == quote {
			if i+1 < len(query) && query[i+1] == quote {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return len(query)
}
