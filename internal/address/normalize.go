// Package address canonicalizes raw sender and recipient strings into comparable keys
package address

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/mikey/mailgraph/internal/core"
)

var (
	atPattern    = regexp.MustCompile(`\s*[\[\(]\s*at\s*[\]\)]\s*|\s+at\s+`)
	dotPattern   = regexp.MustCompile(`\s*[\[\(]\s*dot\s*[\]\)]\s*|\s+dot\s+`)
	spacePattern = regexp.MustCompile(`\s+`)
	bracketStrip = strings.NewReplacer("<", "", ">", "")
)

// Normalize converts a raw address into its canonical key.
// Input without a usable "@" after cleanup yields core.InvalidAddress
func Normalize(raw string) core.NormalizedAddress {
	s := strings.TrimSpace(raw)

	// "Display Name <addr>" keeps only the bracketed part
	if open := strings.LastIndex(s, "<"); open >= 0 {
		if end := strings.Index(s[open:], ">"); end > 0 {
			s = s[open+1 : open+end]
		}
	}

	s = strings.ToLower(s)
	s = atPattern.ReplaceAllString(s, "@")
	s = dotPattern.ReplaceAllString(s, ".")
	s = bracketStrip.Replace(s)
	s = spacePattern.ReplaceAllString(s, "")
	s = strings.Trim(s, `"'`)

	if !isValid(s) {
		return core.InvalidAddress
	}
	return core.NormalizedAddress(s)
}

func isValid(s string) bool {
	if strings.Count(s, "@") != 1 {
		return false
	}
	if strings.ContainsAny(s, "[](),;:\"") {
		return false
	}
	at := strings.IndexByte(s, '@')
	return at > 0 && at < len(s)-1
}

// LocalPart returns the part before the "@", or "" for invalid addresses
func LocalPart(addr core.NormalizedAddress) string {
	if !addr.Valid() {
		return ""
	}
	s := string(addr)
	return s[:strings.IndexByte(s, '@')]
}

// Domain returns the part after the "@", or "" for invalid addresses
func Domain(addr core.NormalizedAddress) string {
	if !addr.Valid() {
		return ""
	}
	s := string(addr)
	return s[strings.IndexByte(s, '@')+1:]
}

// FoldName reduces a display name to the key used for name-based matching:
// accents removed, case folded, punctuation stripped and whitespace collapsed.
// "Doe, Jane" folds to the same key as "Jane Doe"
func FoldName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if parts := strings.Split(name, ","); len(parts) == 2 {
		name = parts[1] + " " + parts[0]
	}

	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, name)
	if err != nil {
		stripped = name
	}
	folded := cases.Fold().String(stripped)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r), r == '-', r == '_':
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// NameTokens counts the words of a folded name
func NameTokens(folded string) int {
	return len(strings.Fields(folded))
}
