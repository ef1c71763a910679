package telegram

// MaxMessageLength is the Telegram limit for one message, in characters.
const MaxMessageLength = 4096

// SplitMessage cuts text into chunks of at most MaxMessageLength characters.
// Cuts prefer the last blank line inside the window; newlines at the start of
// the following chunk are dropped.
func SplitMessage(text string) []string {
	runes := []rune(text)
	if len(runes) <= MaxMessageLength {
		return []string{text}
	}
	var parts []string
	for len(runes) > MaxMessageLength {
		cut := lastBlankLine(runes[:MaxMessageLength])
		if cut <= 0 {
			cut = MaxMessageLength
		}
		parts = append(parts, string(runes[:cut]))
		runes = trimLeadingNewlines(runes[cut:])
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

func lastBlankLine(window []rune) int {
	for i := len(window) - 2; i >= 0; i-- {
		if window[i] == '\n' && window[i+1] == '\n' {
			return i
		}
	}
	return -1
}

func trimLeadingNewlines(runes []rune) []rune {
	for len(runes) > 0 && runes[0] == '\n' {
		runes = runes[1:]
	}
	return runes
}
