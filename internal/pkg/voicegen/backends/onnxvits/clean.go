package onnxvits

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	urlRe        = regexp.MustCompile(`https?://\S+|www\.\S+`)
	htmlTagRe    = regexp.MustCompile(`<[^>]+>`)
	emailRe      = regexp.MustCompile(`\S+@\S+\.\S+`)
)

// punctuation folds typographic marks onto the ASCII characters VITS
// vocabularies usually contain. Spanish inverted marks are kept.
var punctuation = strings.NewReplacer(
	"“", "\"",
	"”", "\"",
	"‘", "'",
	"’", "'",
	"«", "\"",
	"»", "\"",
	"—", ", ",
	"–", ", ",
	"…", "...",
	"•", ",",
)

// cleanText removes content that should not be read aloud and normalises
// punctuation and spacing.
func cleanText(text string) string {
	text = norm.NFC.String(text)
	text = urlRe.ReplaceAllString(text, "")
	text = htmlTagRe.ReplaceAllString(text, "")
	text = emailRe.ReplaceAllString(text, "")
	text = punctuation.Replace(text)
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
