package comm

// ExtractInteger parses a signed decimal at the start of s, stopping at
// the first ',' or the end of s. An optional leading '+' or '-' is
// accepted.
//
// Bytes are not validated: every byte is folded in as b-'0', so "1a"
// yields 10+('a'-'0') = 59. Callers relying on a closed set of values
// (like the RATE command) reject such results by range.
func ExtractInteger[S ~string | ~[]byte](s S) int {
	i, n, sign := 0, 0, 1
	if len(s) > 0 {
		switch s[0] {
		case '-':
			sign, i = -1, 1
		case '+':
			i = 1
		}
	}
	for ; i < len(s) && s[i] != FrameSeparator; i++ {
		n = n*10 + int(s[i]) - '0'
	}
	return sign * n
}

// NextValue returns the index of the field following the one starting at
// i, or len(s) when there is none.
func NextValue[S ~string | ~[]byte](s S, i int) int {
	for i < len(s) && s[i] != FrameSeparator {
		i++
	}
	if i < len(s) {
		i++
	}
	return i
}
