package normalize

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeStripsANSI(t *testing.T) {
	in := "\x1b[31mERROR\x1b[0m: build failed\n\x1b[1;32mok\x1b[0m"
	got := Normalize(in, Options{})
	assert.Equal(t, "ERROR: build failed\nok", got)
}

func TestNormalizeStripsTimestamps(t *testing.T) {
	in := "2024-05-01T12:33:54.1234567Z ##[group]Run pytest\n" +
		"2024-05-01T12:33:55.0000001Z ModuleNotFoundError: No module named 'requests'"
	got := Normalize(in, Options{})
	assert.Equal(t, "##[group]Run pytest\nModuleNotFoundError: No module named 'requests'", got)
}

func TestNormalizeCRLF(t *testing.T) {
	got := Normalize("line one\r\nline two\rline three", Options{})
	assert.Equal(t, "line one\nline two\nline three", got)
}

func TestNormalizeEmptyInput(t *testing.T) {
	assert.Equal(t, "", Normalize("", Options{}))
	assert.Equal(t, "", Normalize("   \n\t\n", Options{}))
}

func TestNormalizeTruncationKeepsHeadAndTail(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("$ pytest tests/\n")
	for i := 0; i < 2000; i++ {
		sb.WriteString("collecting tests module line filler text\n")
	}
	sb.WriteString("FAILED tests/test_api.py::test_login - AssertionError\n")
	sb.WriteString("=== 1 failed in 3.21s ===")

	got := Normalize(sb.String(), Options{MaxChars: 2000})
	assert.LessOrEqual(t, len(got), 2000)
	assert.True(t, strings.HasPrefix(got, "$ pytest tests/"), "head preserved")
	assert.Contains(t, got, "[log truncated]")
	assert.Contains(t, got, "=== 1 failed in 3.21s ===")
}

func TestNormalizeShortInputUntouched(t *testing.T) {
	in := "error: cannot find symbol\n  at Foo.java:12"
	assert.Equal(t, in, Normalize(in, Options{MaxChars: 5000}))
}

func TestNormalizeTruncationNeverSplitsRunes(t *testing.T) {
	// One long line, so line-boundary trimming cannot hide a mid-rune cut.
	in := strings.Repeat("ビルド失敗テスト", 500)
	for _, maxChars := range []int{10, 100, 999} {
		got := Normalize(in, Options{MaxChars: maxChars})
		assert.True(t, utf8.ValidString(got), "maxChars=%d yields invalid UTF-8", maxChars)
		assert.LessOrEqual(t, len(got), maxChars)
	}
}

func TestTrimToRuneBoundary(t *testing.T) {
	assert.Equal(t, "héllo", TrimToRuneBoundary("héllo", 10))
	assert.Equal(t, "h", TrimToRuneBoundary("héllo", 2), "cut backs up over the split é")
	assert.Equal(t, "hé", TrimToRuneBoundary("héllo", 3))
	assert.Equal(t, "", TrimToRuneBoundary("héllo", 0))
	assert.Equal(t, "", TrimToRuneBoundary("héllo", -5))
}
