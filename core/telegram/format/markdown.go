package format

import (
	"regexp"
)

var mdV1Specials = regexp.MustCompile("([_*\\[`])")

// EscapeMarkdown escapes special characters for Telegram Markdown (v1) so
// user-provided text cannot break message formatting.
func EscapeMarkdown(text string) string {
	return mdV1Specials.ReplaceAllString(text, `\$1`)
}
