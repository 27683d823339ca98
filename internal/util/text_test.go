package util

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSlug(t *testing.T) {
	assert.Equal(t, "ewing_pharmacy", Slug("Ewing Pharmacy"))
	assert.Equal(t, "zarchy_pharmacy", Slug(" Zarchy Pharmacy "))
}

func TestSanitizeFileName(t *testing.T) {
	assert.Equal(t, "RX_FINERR_NIGHTLY_a_b.csv", SanitizeFileName("RX FINERR NIGHTLY a/b.csv"))

	long := SanitizeFileName(strings.Repeat("a", 119) + "éé")
	assert.True(t, utf8.ValidString(long))
	assert.Equal(t, strings.Repeat("a", 119), long)
	assert.Len(t, SanitizeFileName(strings.Repeat("é", 100)), 120)
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", FirstNonEmpty("", "  ", "b", "c"))
	assert.Equal(t, "", FirstNonEmpty())
}

func TestCleanHeader(t *testing.T) {
	assert.Equal(t, "RXNO", CleanHeader("\ufeff RXNO "))
	assert.Equal(t, "QUANT", CleanHeader("QUANT"))
}

func TestSanitizeUTF8(t *testing.T) {
	assert.Equal(t, "abc", string(SanitizeUTF8([]byte("abc"))))
	assert.Equal(t, "a\ufffdb", string(SanitizeUTF8([]byte{'a', 0xff, 'b'})))
}
