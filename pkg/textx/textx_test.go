package textx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "hello world", SanitizeText("  hello world  "))
	assert.Equal(t, "a\nb", SanitizeText("a\nb"))
	assert.Equal(t, "ab", SanitizeText("a\x00\x08b"), "control characters are dropped")
	assert.Equal(t, "ok", SanitizeText("ok\x7f"))
	assert.Equal(t, "abc", SanitizeText("abc\xff"), "invalid UTF-8 is repaired")
	assert.Equal(t, "", SanitizeText("\x00\x01"))
}

func TestCollapseSpaces(t *testing.T) {
	assert.Equal(t, "a b c", CollapseSpaces("a   b\t\nc"))
	assert.Equal(t, "", CollapseSpaces("   "))
	assert.Equal(t, "one two", CollapseSpaces("\tone\r\n two "))
}

func TestWordCount(t *testing.T) {
	assert.Equal(t, 0, WordCount(""))
	assert.Equal(t, 0, WordCount("   "))
	assert.Equal(t, 3, WordCount("three little words"))
	assert.Equal(t, 2, WordCount("  padded\twords\n"))
}
