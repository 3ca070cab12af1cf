// Package sanitize cleans untrusted text before it is stored or shown: file
// names of submitted evidence and the free text of custom agent rosters. It
// strips control characters, markup and path components while preserving
// the readable content.
package sanitize

import (
	"path"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxTextLength is the maximum allowed length for roster text fields.
const MaxTextLength = 2000

// MaxFileNameLength is the maximum allowed length in bytes for file names.
const MaxFileNameLength = 255

// FallbackFileName replaces a file name with nothing usable left in it.
const FallbackFileName = "evidence"

// Pre-compiled regular expressions for performance.
var (
	// reXMLTag matches XML/HTML tags including those with attributes and self-closing tags.
	// It also matches XML processing instructions like <?xml ...?>.
	reXMLTag = regexp.MustCompile(`<[/?!]?[a-zA-Z][a-zA-Z0-9]*(?:\s+[^>]*)?/?>|<\?[^?]*\?>`)

	// reMarkdownHeading matches markdown headings at the start of a line (# , ## , etc.).
	reMarkdownHeading = regexp.MustCompile(`(?m)^#{1,6}\s+`)

	// reHorizontalRule matches markdown horizontal rules (---, ***, ___) at the start of a line.
	reHorizontalRule = regexp.MustCompile(`(?m)^[-*_]{3,}\s*$`)

	// reTripleBacktick matches triple (or more) backtick sequences used in code fences.
	reTripleBacktick = regexp.MustCompile("```+")

	// reExcessiveNewlines matches 3 or more consecutive newlines.
	reExcessiveNewlines = regexp.MustCompile(`\n{3,}`)

	reRepeatedSpaces      = regexp.MustCompile(` {2,}`)
	reRepeatedHyphens     = regexp.MustCompile(`-{2,}`)
	reRepeatedUnderscores = regexp.MustCompile(`_{2,}`)
	reRepeatedDots        = regexp.MustCompile(`\.{2,}`)
)

// Text sanitizes free text from an agent roster (results, labels, phrases)
// before it reaches the terminal, the HTTP API or an MCP client.
//
// The sanitization pipeline runs in this order:
//  1. Strip null bytes and ASCII control characters (except \n, \t)
//  2. Strip XML/HTML tags
//  3. Replace markdown headings with list markers
//  4. Remove markdown horizontal rules
//  5. Collapse triple backticks to single backtick
//  6. Collapse excessive newlines (3+ -> 2)
//  7. Trim leading/trailing whitespace
//  8. Truncate to MaxTextLength
func Text(input string) string {
	if input == "" {
		return ""
	}

	s := stripControlChars(input, true)
	s = reXMLTag.ReplaceAllString(s, "")
	s = reMarkdownHeading.ReplaceAllString(s, "- ")
	s = reHorizontalRule.ReplaceAllString(s, "")
	s = reTripleBacktick.ReplaceAllString(s, "`")
	s = reExcessiveNewlines.ReplaceAllString(s, "\n\n")
	s = strings.TrimSpace(s)

	if len(s) > MaxTextLength {
		s = truncateUTF8(s, MaxTextLength) + "..."
	}
	return s
}

// FileName reduces an uploaded or user-supplied file name to a safe display
// and storage name. Directory components are dropped, only letters, digits,
// spaces and ._-() are kept, and the result never starts with a dot. The
// extension survives truncation. FileName never returns an empty string.
func FileName(input string) string {
	s := strings.ReplaceAll(input, `\`, "/")
	s = path.Base(s)
	if s == "." || s == "/" {
		return FallbackFileName
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range stripControlChars(s, false) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '.', r == '-', r == '_', r == ' ', r == '(', r == ')':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	s = b.String()

	s = reRepeatedSpaces.ReplaceAllString(s, " ")
	s = reRepeatedHyphens.ReplaceAllString(s, "-")
	s = reRepeatedUnderscores.ReplaceAllString(s, "_")
	s = reRepeatedDots.ReplaceAllString(s, ".")
	s = strings.TrimLeft(s, ". ")
	s = strings.TrimRight(s, ". ")

	if len(s) > MaxFileNameLength {
		ext := path.Ext(s)
		if len(ext) > 16 {
			ext = ""
		}
		s = truncateUTF8(strings.TrimSuffix(s, ext), MaxFileNameLength-len(ext)) + ext
	}

	if s == "" || strings.Trim(s, "-_()") == "" {
		return FallbackFileName
	}
	return s
}

// stripControlChars removes ASCII control characters (0x00-0x1F, 0x7F).
// Newline and tab are kept when keepLayout is set.
func stripControlChars(s string, keepLayout bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			if keepLayout && (r == '\n' || r == '\t') {
				b.WriteRune(r)
			}
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
