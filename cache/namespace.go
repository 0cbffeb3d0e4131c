package cache

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrInvalidNamespace reports a namespace that cannot address cache entries.
var ErrInvalidNamespace = errors.New("cache: invalid namespace")

// NormalizeNamespace folds namespace into lower snake_case words, so
// "PlayerProfile", "player-profile" and "player profile" share one key space.
//
// A namespace containing KeySeparator is rejected: "match:eu" would otherwise
// address the same entries as namespace "match" with the part "eu". A
// namespace with no letters or digits is rejected as well.
func NormalizeNamespace(namespace string) (string, error) {
	if strings.Contains(namespace, KeySeparator) {
		return "", fmt.Errorf("%w: %q contains %q", ErrInvalidNamespace, namespace, KeySeparator)
	}
	ns := snakeCase(namespace)
	if ns == "" {
		return "", fmt.Errorf("%w: %q has no letters or digits", ErrInvalidNamespace, namespace)
	}
	return ns, nil
}

func snakeCase(s string) string {
	return strings.Join(words(s), "_")
}

// words splits s on anything that is not a letter or digit, before an upper
// case letter that follows a lower case letter or digit, before the last
// capital of an acronym ("HTTPSession" is http, session) and before a run of
// digits.
func words(s string) []string {
	runes := []rune(s)
	var out []string
	start := -1

	flush := func(end int) {
		if start >= 0 {
			out = append(out, strings.ToLower(string(runes[start:end])))
			start = -1
		}
	}

	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush(i)
			continue
		}
		if start >= 0 {
			prev := runes[i-1]
			acronymEnd := unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1])
			switch {
			case unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)):
				flush(i)
			case unicode.IsUpper(r) && acronymEnd:
				flush(i)
			case unicode.IsDigit(r) && !unicode.IsDigit(prev):
				flush(i)
			}
		}
		if start < 0 {
			start = i
		}
	}
	flush(len(runes))
	return out
}
