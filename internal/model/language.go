package model

// LangAuto asks the speech provider to detect the source language.
const LangAuto = "auto"

// supportedLanguages maps ISO-639 codes to display names used in translation
// prompts. Codes outside this table pass through as opaque keys.
var supportedLanguages = map[string]string{
	"en": "English",
	"th": "Thai",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"ja": "Japanese",
	"ko": "Korean",
	"zh": "Chinese (Mandarin)",
	"ar": "Arabic",
	"pt": "Portuguese",
	"ru": "Russian",
	"hi": "Hindi",
	"vi": "Vietnamese",
	"it": "Italian",
	"nl": "Dutch",
	"tr": "Turkish",
	"pl": "Polish",
	"sv": "Swedish",
	"id": "Indonesian",
	"ms": "Malay",
}

// LanguageName resolves a code to its display name. Unknown codes are
// returned unmodified rather than rejected, so callers can forward
// unrecognized pairs to the provider verbatim.
func LanguageName(code string) string {
	if name, ok := supportedLanguages[code]; ok {
		return name
	}
	return code
}

// KnownLanguage reports whether the code is in the supported table.
func KnownLanguage(code string) bool {
	_, ok := supportedLanguages[code]
	return ok
}

// SupportedLanguageCount is used by health/info endpoints.
func SupportedLanguageCount() int {
	return len(supportedLanguages)
}

// SupportedLanguageCodes returns the codes in the supported table, in no
// particular order.
func SupportedLanguageCodes() []string {
	out := make([]string, 0, len(supportedLanguages))
	for code := range supportedLanguages {
		out = append(out, code)
	}
	return out
}
