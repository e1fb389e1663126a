package wire

import "strconv"

// The scanners locate the first literal occurrence of "key": in payload.
// They do not track string boundaries, so a value containing that exact
// text ahead of the real key would be matched instead.

// ScanString returns the unescaped string value of key, or "" when the key
// is missing or its value is not a terminated string.
func ScanString(payload []byte, key string) string {
	i := valueIndex(payload, key)
	if i < 0 {
		return ""
	}
	for i < len(payload) && isSpace(payload[i]) {
		i++
	}
	if i >= len(payload) || payload[i] != '"' {
		return ""
	}
	i++
	out := make([]byte, 0, 16)
	for i < len(payload) {
		c := payload[i]
		switch c {
		case '"':
			return string(out)
		case '\\':
			i++
			if i >= len(payload) {
				return ""
			}
			out = append(out, payload[i])
		default:
			out = append(out, c)
		}
		i++
	}
	return ""
}

// ScanInt reads an optional leading '-' and a run of digits right after the
// colon. Missing keys and unparsable runs yield 0.
func ScanInt(payload []byte, key string) int64 {
	i := valueIndex(payload, key)
	if i < 0 {
		return 0
	}
	start := i
	if i < len(payload) && payload[i] == '-' {
		i++
	}
	for i < len(payload) && isDigit(payload[i]) {
		i++
	}
	v, err := strconv.ParseInt(string(payload[start:i]), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// ScanFloat reads a run of digits, '-', '.', 'e' and 'E' right after the
// colon. Missing keys and unparsable runs yield 0.
func ScanFloat(payload []byte, key string) float64 {
	i := valueIndex(payload, key)
	if i < 0 {
		return 0
	}
	start := i
	for i < len(payload) && isFloatByte(payload[i]) {
		i++
	}
	v, err := strconv.ParseFloat(string(payload[start:i]), 64)
	if err != nil {
		return 0
	}
	return v
}

func valueIndex(payload []byte, key string) int {
	needle := make([]byte, 0, len(key)+3)
	needle = append(needle, '"')
	needle = append(needle, key...)
	needle = append(needle, '"', ':')
	idx := indexOf(payload, needle)
	if idx < 0 {
		return -1
	}
	return idx + len(needle)
}

func indexOf(payload, needle []byte) int {
	if len(needle) == 0 || len(payload) < len(needle) {
		return -1
	}
outer:
	for i := 0; i <= len(payload)-len(needle); i++ {
		for j := 0; j < len(needle); j++ {
			if payload[i+j] != needle[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isFloatByte(b byte) bool {
	return isDigit(b) || b == '-' || b == '.' || b == 'e' || b == 'E'
}
