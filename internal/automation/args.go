package automation

import (
	"errors"
	"strings"
	"unicode"
)

// ErrUnterminatedQuote is returned by SplitArgs for an argument string with
// an unclosed single or double quote.
var ErrUnterminatedQuote = errors.New("unterminated quote in arguments")

// SplitArgs splits a free-form argument string into an argv slice using
// shell-like rules: fields are separated by whitespace, and single or double
// quotes group a field containing whitespace. No variable expansion or
// escaping beyond that; the pieces are passed to the process as-is.
func SplitArgs(s string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		quote   rune
		inField bool
	)

	flush := func() {
		if inField {
			args = append(args, current.String())
			current.Reset()
			inField = false
		}
	}

	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}

		case r == '\'' || r == '"':
			quote = r
			inField = true

		case unicode.IsSpace(r):
			flush()

		default:
			current.WriteRune(r)
			inField = true
		}
	}

	if quote != 0 {
		return nil, ErrUnterminatedQuote
	}

	flush()

	return args, nil
}
