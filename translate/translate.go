// Package translate formats user visible messages for the user's locale.
package translate

import (
	"log"

	"github.com/jeandeaual/go-locale"

	"golang.org/x/text/message"
)

// Fallback is the message language used when the locale is unknown.
const Fallback = "en-US"

var printer = message.NewPrinter(message.MatchLanguage(userLocales()...))

func userLocales() (locales []string) {
	locales, err := locale.GetLocales()
	if err != nil {
		log.Printf("minirisc: locale: %v", err)
	}

	return append(locales, Fallback)
}

// SetLanguage selects the message language, by BCP 47 tags in order of preference.
func SetLanguage(tags ...string) {
	printer = message.NewPrinter(message.MatchLanguage(append(tags, Fallback)...))
}

// From an en-US Sprintf() format, translate to string.
func From(key message.Reference, args ...any) string {
	return printer.Sprintf(key, args...)
}
