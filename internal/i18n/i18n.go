// Package i18n provides the message printer used for CLI output.
package i18n

import (
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultLang is the fallback language
var DefaultLang = language.English

// SupportedLangs are the languages we support
var SupportedLangs = []language.Tag{
	language.English,
	language.German,
}

var matcher = language.NewMatcher(SupportedLangs)

// CLI message keys with non-English catalog entries.
const (
	MsgConfigOK      = "Configuration %s is valid.\n"
	MsgConfigInvalid = "Configuration %s is invalid: %v\n"
	MsgRouteLine     = "%-6s %-28s expected %-8s observed %-8s %s\n"
	MsgSpoolEmpty    = "Spool is empty.\n"
	MsgSpoolFlushed  = "Flushed %d of %d spooled results.\n"
	MsgLockHeld      = "Lock %s held for %v.\n"
	MsgLockFree      = "Lock %s is free.\n"
	MsgWatchdog      = "Watchdog count %d (threshold %d).\n"
	MsgWroteConfig   = "Wrote default configuration to %s.\n"
)

func init() {
	for key, de := range map[string]string{
		MsgConfigOK:      "Konfiguration %s ist gültig.\n",
		MsgConfigInvalid: "Konfiguration %s ist ungültig: %v\n",
		MsgRouteLine:     "%-6s %-28s erwartet %-8s beobachtet %-8s %s\n",
		MsgSpoolEmpty:    "Spool ist leer.\n",
		MsgSpoolFlushed:  "%d von %d gespoolten Ergebnissen gesendet.\n",
		MsgLockHeld:      "Sperre %s seit %v gehalten.\n",
		MsgLockFree:      "Sperre %s ist frei.\n",
		MsgWatchdog:      "Watchdog-Zähler %d (Schwelle %d).\n",
		MsgWroteConfig:   "Standardkonfiguration nach %s geschrieben.\n",
	} {
		_ = message.SetString(language.German, key, de)
	}
}

// MatchLanguage returns the best matching language for the given tags
func MatchLanguage(acceptLang string) language.Tag {
	tags, _, _ := language.ParseAcceptLanguage(acceptLang)
	tag, _, _ := matcher.Match(tags...)
	return tag
}

// NewPrinter returns a message printer for the given language
func NewPrinter(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag)
}

// LangFromEnv returns the supported language selected by LC_ALL or LANG.
func LangFromEnv() language.Tag {
	lang := os.Getenv("LC_ALL")
	if lang == "" {
		lang = os.Getenv("LANG")
	}
	if lang == "" || lang == "C" || lang == "POSIX" {
		return DefaultLang
	}

	// Strip encoding (e.g. .UTF-8) if present
	if i := strings.Index(lang, "."); i != -1 {
		lang = lang[:i]
	}
	lang = strings.ReplaceAll(lang, "_", "-")

	tag, err := language.Parse(lang)
	if err != nil {
		return MatchLanguage(lang)
	}
	// Map "de-DE" -> "de" when only the base is supported
	tag, _, _ = matcher.Match(tag)
	return tag
}

// NewCLIPrinter returns a printer for the system's locale (from env vars)
func NewCLIPrinter() *message.Printer {
	return message.NewPrinter(LangFromEnv())
}
