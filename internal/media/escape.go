package media

import "strings"

// TruncateText shortens text to max runes.
func TruncateText(text string, max int) string {
	runes := []rune(strings.TrimSpace(text))
	if max <= 0 || len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max])
}

// EscapeDrawtext escapes text for use inside a single-quoted drawtext text= option.
func EscapeDrawtext(text string) string {
	if text == "" {
		return ""
	}

	var result strings.Builder
	result.Grow(len(text) * 2)

	for _, r := range text {
		switch r {
		case '\\':
			result.WriteString(`\\`)
		case '\'':
			result.WriteString(`'\''`)
		case ':':
			result.WriteString(`\:`)
		case '\n', '\r':
			result.WriteRune(' ')
		default:
			result.WriteRune(r)
		}
	}

	return result.String()
}

// EscapeFilterPath escapes a file path used as a filter argument, such as subtitles=.
func EscapeFilterPath(path string) string {
	r := strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`, `,`, `\,`, `;`, `\;`, `[`, `\[`, `]`, `\]`)
	return r.Replace(path)
}

// escapeConcatPath quotes a path for a concat demuxer list entry.
func escapeConcatPath(path string) string {
	return "'" + strings.ReplaceAll(path, "'", `'\''`) + "'"
}
