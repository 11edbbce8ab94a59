package registry

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DefaultLanguageCode is used for any language selection without a mapping.
const DefaultLanguageCode = "es"

var languageLabels = map[string]string{
	"español": "es",
	"spanish": "es",
	"inglés":  "en",
	"english": "en",
	"francés": "fr",
	"french":  "fr",
}

// Languages the reference-conditioned backend accepts as raw codes.
var backendLanguages = map[string]bool{
	"en": true, "es": true, "fr": true, "de": true, "it": true, "pt": true,
	"pl": true, "tr": true, "ru": true, "nl": true, "cs": true, "ar": true,
	"zh-cn": true, "ja": true, "hu": true, "ko": true, "hi": true,
}

// LanguageCode maps a UI language selection to a backend language code.
// Labels are matched case-insensitively ("Francés", "french") and codes the
// backend accepts pass through exactly ("de", "zh-cn"). Anything else falls
// back to DefaultLanguageCode.
func LanguageCode(selection string) string {
	key := cases.Fold().String(norm.NFC.String(strings.TrimSpace(selection)))
	if code, ok := languageLabels[key]; ok {
		return code
	}
	if backendLanguages[key] {
		return key
	}
	return DefaultLanguageCode
}
