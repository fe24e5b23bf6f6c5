package store

import (
	"regexp"
	"strings"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeTitle lowercases and trims a title for use as the
// title_normalized column.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// GenerateTitleAuthorIdentifier is the canonical, deterministic
// derivation from : lowercase both title and author, trim,
// collapse internal whitespace runs to underscores, then join as
// "title_author:<title>|<author>". It is pure and injective modulo its
// own normalization.
func GenerateTitleAuthorIdentifier(title, author string) string {
	t := normalizeForIdentifier(title)
	a := normalizeForIdentifier(author)
	return "title_author:" + t + "|" + a
}

func normalizeForIdentifier(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return whitespaceRun.ReplaceAllString(s, "_")
}

// legacyTitleAuthorNumeric matches the pre-canonical numeric identifier
// form "title_author_<userBookId>_<editionId>"; IsLegacyTitleAuthorForm
// also recognizes the "title:author" colon-form. The store never writes
// either form; RewriteLegacyIdentifier can replace one with the
// canonical form.
var legacyTitleAuthorNumeric = regexp.MustCompile(`^title_author_\d+_\d+$`)

// IsLegacyTitleAuthorForm reports whether identifier looks like one of
// the tolerated legacy forms rather than the canonical
// "title_author:<t>|<a>" form.
func IsLegacyTitleAuthorForm(identifier string) bool {
	if legacyTitleAuthorNumeric.MatchString(identifier) {
		return true
	}
	if strings.Contains(identifier, ":") && !strings.HasPrefix(identifier, "title_author:") {
		return true
	}
	return false
}
