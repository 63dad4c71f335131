package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestMatchLanguage(t *testing.T) {
	tests := []struct {
		accept   string
		expected language.Tag
	}{
		{"en-US,en;q=0.9", language.English},
		{"de-DE,de;q=0.9", language.German},
		{"fr-FR", language.English}, // Fallback
		{"", language.English},      // Empty
	}

	for _, tt := range tests {
		got := MatchLanguage(tt.accept)
		base, _ := got.Base()
		exp, _ := tt.expected.Base()
		assert.Equal(t, exp, base, "Accept: %s", tt.accept)
	}
}

func TestLangFromEnv(t *testing.T) {
	tests := []struct {
		lcAll string
		lang  string
		want  language.Tag
	}{
		{"", "", language.English},
		{"", "C", language.English},
		{"", "de_DE.UTF-8", language.German},
		{"en_GB.UTF-8", "de_DE.UTF-8", language.English},
		{"", "fr_FR.UTF-8", language.English},
	}
	for _, tt := range tests {
		t.Setenv("LC_ALL", tt.lcAll)
		t.Setenv("LANG", tt.lang)
		base, _ := LangFromEnv().Base()
		want, _ := tt.want.Base()
		assert.Equal(t, want, base, "LC_ALL=%q LANG=%q", tt.lcAll, tt.lang)
	}
}

func TestCatalog(t *testing.T) {
	de := NewPrinter(language.German)
	assert.Equal(t, "Spool ist leer.\n", de.Sprintf(MsgSpoolEmpty))

	en := NewPrinter(language.English)
	assert.Equal(t, "Flushed 2 of 3 spooled results.\n", en.Sprintf(MsgSpoolFlushed, 2, 3))
}
