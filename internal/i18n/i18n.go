// Package i18n picks message printers for CLI and HTTP output so counts and
// rates are formatted for the reader's locale.
package i18n

import (
	"context"
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultLang is the fallback language
var DefaultLang = language.English

// SupportedLangs are the languages we format for
var SupportedLangs = []language.Tag{
	language.English,
	language.German,
	language.French,
}

var matcher = language.NewMatcher(SupportedLangs)

type contextKey struct{}

var printerKey = contextKey{}

// MatchLanguage returns the best supported language for an Accept-Language
// style list.
func MatchLanguage(accept string) language.Tag {
	tags, _, _ := language.ParseAcceptLanguage(accept)
	tag, _, _ := matcher.Match(tags...)
	return tag
}

// WithPrinter returns a new context carrying p.
func WithPrinter(ctx context.Context, p *message.Printer) context.Context {
	return context.WithValue(ctx, printerKey, p)
}

// GetPrinter returns the printer from ctx, or one for DefaultLang.
func GetPrinter(ctx context.Context) *message.Printer {
	if p, ok := ctx.Value(printerKey).(*message.Printer); ok {
		return p
	}
	return message.NewPrinter(DefaultLang)
}

// NewCLIPrinter returns a printer for the locale named by LC_ALL or LANG.
func NewCLIPrinter() *message.Printer {
	lang := os.Getenv("LC_ALL")
	if lang == "" {
		lang = os.Getenv("LANG")
	}
	return message.NewPrinter(localeTag(lang))
}

// localeTag maps a POSIX locale such as "de_DE.UTF-8" to a supported tag.
func localeTag(lang string) language.Tag {
	if i := strings.IndexAny(lang, ".@"); i != -1 {
		lang = lang[:i]
	}
	if lang == "" || lang == "C" || lang == "POSIX" {
		return DefaultLang
	}
	tag, err := language.Parse(strings.ReplaceAll(lang, "_", "-"))
	if err != nil {
		return DefaultLang
	}
	tag, _, _ = matcher.Match(tag)
	return tag
}
