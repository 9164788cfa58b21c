package ingest

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// removeDiacritics folds accented characters to their base letters via
// canonical decomposition. The transformer chain is stateful, so a fresh
// one is built per call.
func removeDiacritics(s string) string {
	chain := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(chain, s)
	if err != nil {
		return s
	}
	return out
}

// mapSafe replaces every rune outside [a-zA-Z0-9._-] with an underscore.
func mapSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

// SanitizeFilename converts a client-supplied filename into a form safe
// for staging on disk: directory components are stripped, diacritics are
// folded to base letters, unsafe runes become underscores and the
// extension is lowercased. Uniqueness comes from the task id prefix, so
// no collision renaming happens here.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = filepath.Base(name)
	name = removeDiacritics(name)

	ext := strings.ToLower(mapSafe(filepath.Ext(name)))
	stem := mapSafe(strings.TrimSuffix(name, filepath.Ext(name)))

	if strings.Trim(stem, "._-") == "" {
		stem = "upload"
	}
	return stem + ext
}
