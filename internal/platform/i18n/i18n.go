// Package i18n resolves the response language for the bilingual admin API.
package i18n

import (
	"context"

	"golang.org/x/text/language"
)

var supported = []language.Tag{
	language.English, // default
	language.Spanish,
}

var matcher = language.NewMatcher(supported)

type langContextKey struct{}

// Match resolves an Accept-Language header value to a supported tag.
func Match(acceptLanguage string) language.Tag {
	if acceptLanguage == "" {
		return supported[0]
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return supported[0]
	}
	_, index, _ := matcher.Match(tags...)
	return supported[index]
}

// ContextWithLanguage stores the negotiated language in context.
func ContextWithLanguage(ctx context.Context, tag language.Tag) context.Context {
	return context.WithValue(ctx, langContextKey{}, tag)
}

// FromContext returns the negotiated language, defaulting to English.
func FromContext(ctx context.Context) language.Tag {
	tag, ok := ctx.Value(langContextKey{}).(language.Tag)
	if !ok {
		return supported[0]
	}
	return tag
}

var messages = map[language.Tag]map[string]string{
	language.English: {
		"not_found":             "Not Found",
		"conflict":              "Conflict",
		"referential_integrity": "Referential Integrity Violation",
		"validation_failed":     "Validation Failed",
		"forbidden":             "Forbidden",
		"unauthorized":          "Unauthorized",
		"internal_error":        "Internal Error",
	},
	language.Spanish: {
		"not_found":             "No encontrado",
		"conflict":              "Conflicto",
		"referential_integrity": "Violación de integridad referencial",
		"validation_failed":     "Validación fallida",
		"forbidden":             "Prohibido",
		"unauthorized":          "No autorizado",
		"internal_error":        "Error interno",
	},
}

// T translates a message key for the given language.
func T(tag language.Tag, key string) string {
	if m, ok := messages[tag]; ok {
		if s, ok := m[key]; ok {
			return s
		}
	}
	if s, ok := messages[language.English][key]; ok {
		return s
	}
	return key
}
