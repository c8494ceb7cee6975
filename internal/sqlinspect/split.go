package sqlinspect

import "strings"

// Split breaks a script into statements on top-level semicolons. Quoted
// strings, quoted identifiers, comments and PostgreSQL dollar-quoted bodies
// are never split. Empty statements are dropped and the text of each
// statement is trimmed.
func Split(script string) []string {
	var (
		stmts []string
		start int
		i     int
	)
	n := len(script)
	for i < n {
		c := script[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			i = skipQuoted(script, i, c)
		case c == '-' && i+1 < n && script[i+1] == '-':
			i = skipLine(script, i)
		case c == '/' && i+1 < n && script[i+1] == '*':
			end := strings.Index(script[i+2:], "*/")
			if end < 0 {
				i = n
			} else {
				i += end + 4
			}
		case c == '$':
			i = skipDollarQuoted(script, i)
		case c == ';':
			if s := strings.TrimSpace(script[start:i]); s != "" && !onlyComments(s) {
				stmts = append(stmts, s)
			}
			i++
			start = i
		default:
			i++
		}
	}
	if s := strings.TrimSpace(script[start:]); s != "" && !onlyComments(s) {
		stmts = append(stmts, s)
	}
	return stmts
}

func skipQuoted(s string, i int, q byte) int {
	i++
	for i < len(s) {
		switch s[i] {
		case '\\':
			if q == '\'' {
				i += 2
				continue
			}
		case q:
			// doubled quote is an escaped quote
			if i+1 < len(s) && s[i+1] == q {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return len(s)
}

func skipLine(s string, i int) int {
	if nl := strings.IndexByte(s[i:], '\n'); nl >= 0 {
		return i + nl + 1
	}
	return len(s)
}

// skipDollarQuoted skips $tag$...$tag$. A lone $ (as in $1) is a single byte.
func skipDollarQuoted(s string, i int) int {
	j := i + 1
	for j < len(s) && (s[j] == '_' || isAlnum(s[j])) {
		j++
	}
	if j >= len(s) || s[j] != '$' || (j > i+1 && s[i+1] >= '0' && s[i+1] <= '9') {
		return i + 1
	}
	tag := s[i : j+1]
	end := strings.Index(s[j+1:], tag)
	if end < 0 {
		return len(s)
	}
	return j + 1 + end + len(tag)
}

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// stripComments removes leading comments and whitespace.
func stripComments(s string) string {
	for {
		s = strings.TrimSpace(s)
		switch {
		case strings.HasPrefix(s, "--"):
			s = s[skipLine(s, 0):]
		case strings.HasPrefix(s, "/*"):
			end := strings.Index(s, "*/")
			if end < 0 {
				return ""
			}
			s = s[end+2:]
		default:
			return s
		}
	}
}

func onlyComments(s string) bool {
	return stripComments(s) == ""
}
