package query

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var ErrStatementRejected = errors.New("statement rejected")

// Policy inspects query text before it reaches the warehouse.
type Policy interface {
	Check(queryText string) error
}

type PolicyFunc func(queryText string) error

func (f PolicyFunc) Check(queryText string) error {
	return f(queryText)
}

// AllowAll performs no inspection.
var AllowAll Policy = PolicyFunc(func(string) error { return nil })

// ReadOnlyPolicy accepts a single SELECT or WITH statement that contains no
// data-modifying keywords outside string literals and comments.
type ReadOnlyPolicy struct{}

var writeKeywords = map[string]struct{}{
	"insert":   {},
	"into":     {},
	"update":   {},
	"delete":   {},
	"merge":    {},
	"create":   {},
	"drop":     {},
	"alter":    {},
	"truncate": {},
	"grant":    {},
	"revoke":   {},
	"copy":     {},
	"attach":   {},
	"detach":   {},
}

func (ReadOnlyPolicy) Check(queryText string) error {
	words, statements := scanStatement(queryText)
	if len(words) == 0 {
		return fmt.Errorf("%w: empty statement", ErrStatementRejected)
	}
	if statements > 1 {
		return fmt.Errorf("%w: multiple statements", ErrStatementRejected)
	}
	if first := words[0]; first != "select" && first != "with" {
		return fmt.Errorf("%w: %s is not a read-only statement", ErrStatementRejected, strings.ToUpper(first))
	}
	for _, word := range words[1:] {
		if _, blocked := writeKeywords[word]; blocked {
			return fmt.Errorf("%w: %s is not allowed", ErrStatementRejected, strings.ToUpper(word))
		}
	}
	return nil
}

// scanStatement lowercases the bare words of queryText and counts the
// non-empty statements separated by semicolons.
func scanStatement(queryText string) ([]string, int) {
	runes := []rune(queryText)
	words := make([]string, 0, 16)
	statements := 0
	pending := false
	var word strings.Builder

	flush := func() {
		if word.Len() > 0 {
			words = append(words, strings.ToLower(word.String()))
			word.Reset()
		}
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\'' || r == '"' || r == '`':
			flush()
			pending = true
			i = skipQuoted(runes, i, r)
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			flush()
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			flush()
			i += 2
			for i+1 < len(runes) && !(runes[i] == '*' && runes[i+1] == '/') {
				i++
			}
			i++
		case r == ';':
			flush()
			if pending {
				statements++
				pending = false
			}
		case unicode.IsLetter(r) || r == '_':
			word.WriteRune(r)
			pending = true
		case unicode.IsDigit(r) && word.Len() > 0:
			word.WriteRune(r)
		default:
			flush()
			if !unicode.IsSpace(r) {
				pending = true
			}
		}
	}
	flush()
	if pending {
		statements++
	}
	return words, statements
}

// skipQuoted returns the index of the closing quote, honouring doubled quotes.
func skipQuoted(runes []rune, start int, quote rune) int {
	for i := start + 1; i < len(runes); i++ {
		if runes[i] != quote {
			continue
		}
		if i+1 < len(runes) && runes[i+1] == quote {
			i++
			continue
		}
		return i
	}
	return len(runes)
}
