package templates

import (
	"time"

	"golang.org/x/text/language"
)

// Locales with a known short date layout. The first entry is the fallback.
var supportedLocales = []language.Tag{
	language.AmericanEnglish,
	language.BritishEnglish,
	language.German,
	language.French,
	language.Spanish,
	language.Italian,
	language.Dutch,
	language.BrazilianPortuguese,
	language.Russian,
	language.Swedish,
	language.Japanese,
	language.Chinese,
	language.Korean,
}

var dateLayouts = map[language.Tag]string{
	language.AmericanEnglish:     "1/2/2006",
	language.BritishEnglish:      "02/01/2006",
	language.German:              "2.1.2006",
	language.French:              "02/01/2006",
	language.Spanish:             "2/1/2006",
	language.Italian:             "2/1/2006",
	language.Dutch:               "2-1-2006",
	language.BrazilianPortuguese: "02/01/2006",
	language.Russian:             "02.01.2006",
	language.Swedish:             "2006-01-02",
	language.Japanese:            "2006/1/2",
	language.Chinese:             "2006/1/2",
	language.Korean:              "2006. 1. 2.",
}

var localeMatcher = language.NewMatcher(supportedLocales)

// ParseLocale maps a BCP 47 string onto the closest supported locale.
func ParseLocale(s string) language.Tag {
	tag, err := language.Parse(s)
	if err != nil {
		return supportedLocales[0]
	}
	_, idx, conf := localeMatcher.Match(tag)
	if conf == language.No {
		return supportedLocales[0]
	}
	return supportedLocales[idx]
}

// MatchLocale picks the viewer's locale from an Accept-Language header.
func MatchLocale(acceptLanguage string, fallback language.Tag) language.Tag {
	if acceptLanguage == "" {
		return fallback
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return fallback
	}
	_, idx, conf := localeMatcher.Match(tags...)
	if conf == language.No {
		return fallback
	}
	return supportedLocales[idx]
}

// FormatDate renders t as a short, locale-specific date.
func FormatDate(t time.Time, locale language.Tag) string {
	layout, ok := dateLayouts[locale]
	if !ok {
		layout = dateLayouts[supportedLocales[0]]
	}
	return t.Format(layout)
}
