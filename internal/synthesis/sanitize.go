package synthesis

import "strings"

// StripFences removes a surrounding markdown code fence from an LLM response.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if after, ok := strings.CutPrefix(s, "```json"); ok {
		s = after
	} else if after, ok := strings.CutPrefix(s, "```"); ok {
		s = after
	}
	s = strings.TrimSpace(s)
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}

// legalEscapes are the characters that may follow a backslash inside a JSON
// string.
const legalEscapes = `"\/bfnrtu`

// Sanitize repairs the JSON mistakes local models commonly make: code-fence
// wrappers, invalid backslash escapes, raw newlines inside string literals,
// and trailing commas before a closing brace or bracket. The result is not
// guaranteed to parse; callers still attempt json.Unmarshal and retry.
func Sanitize(raw string) string {
	s := StripFences(raw)

	var b strings.Builder
	b.Grow(len(s))
	inString := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch c {
			case '\\':
				if i+1 < len(s) {
					next := s[i+1]
					if strings.IndexByte(legalEscapes, next) >= 0 {
						b.WriteByte(c)
						b.WriteByte(next)
					} else {
						// Invalid escape: drop the backslash, keep the char.
						b.WriteByte(next)
					}
					i++
				}
			case '"':
				inString = false
				b.WriteByte(c)
			case '\n', '\r':
				// Raw newlines are illegal inside JSON strings.
				b.WriteByte(' ')
			default:
				b.WriteByte(c)
			}
			continue
		}

		switch c {
		case '"':
			inString = true
			b.WriteByte(c)
		case ',':
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n' || s[j] == '\r') {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue // trailing comma
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
