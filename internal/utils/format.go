// Package utils holds small helpers shared by the command line layer.
package utils

import "strings"

// FormatCPF renders an 11 digit CPF as 111.222.333-44. Any other input,
// including an already punctuated CPF, is returned trimmed but otherwise
// unchanged.
func FormatCPF(s string) string {
	s = strings.TrimSpace(s)
	if len(s) != 11 || !isDigits(s) {
		return s
	}
	return s[0:3] + "." + s[3:6] + "." + s[6:9] + "-" + s[9:11]
}

// FormatDate renders an 8 digit date written YYYYMMDD as YYYY-MM-DD. Any other
// input is returned trimmed but otherwise unchanged.
func FormatDate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) != 8 || !isDigits(s) {
		return s
	}
	return s[0:4] + "-" + s[4:6] + "-" + s[6:8]
}

func isDigits(s string) bool {
	for i := range len(s) {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
