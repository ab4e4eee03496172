package dialogue

import (
	"strings"
	"unicode"
)

// Supported languages.
const (
	LangRussian = "ru"
	LangKazakh  = "kk"
	LangEnglish = "en"

	DefaultLanguage = LangRussian
)

const kazakhLetters = "әғқңөұүһіӘҒҚҢӨҰҮҺІ"

var kazakhWords = []string{"сәлем", "салем", "рахмет", "керек", "қалай", "тапсырыс", "иә", "жоқ", "маған"}

// DetectLanguage guesses the customer language from one message: Kazakh
// letters or words win, then any Cyrillic means Russian, then Latin means
// English. Anything else falls back to DefaultLanguage.
func DetectLanguage(text string) string {
	lower := strings.ToLower(text)
	if strings.ContainsAny(text, kazakhLetters) {
		return LangKazakh
	}
	for _, field := range strings.FieldsFunc(lower, func(r rune) bool { return !unicode.IsLetter(r) }) {
		for _, w := range kazakhWords {
			if field == w {
				return LangKazakh
			}
		}
	}
	var cyrillic, latin int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic++
		case unicode.Is(unicode.Latin, r):
			latin++
		}
	}
	switch {
	case cyrillic > 0:
		return LangRussian
	case latin > 0:
		return LangEnglish
	default:
		return DefaultLanguage
	}
}

// LanguageFromHint maps a platform language code such as "kk-KZ" or "en".
func LanguageFromHint(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	switch {
	case strings.HasPrefix(code, LangKazakh):
		return LangKazakh
	case strings.HasPrefix(code, LangEnglish):
		return LangEnglish
	default:
		return LangRussian
	}
}

func normalizeLanguage(lang string) string {
	switch lang {
	case LangRussian, LangKazakh, LangEnglish:
		return lang
	default:
		return DefaultLanguage
	}
}
