package reasoning

import (
	"regexp"
	"strings"
)

var (
	calcPattern   = regexp.MustCompile(`\d+[+\-*/]\d+`)
	memoryPattern = regexp.MustCompile(`(?i)lembrar[:\s]+(.+?)[:\s]+(.+)`)
)

// DetectCalculation returns the first "<digits><op><digits>" substring of
// msg.
func DetectCalculation(msg string) (string, bool) {
	m := calcPattern.FindString(msg)
	return m, m != ""
}

// DetectMemory extracts a key and value from messages such as
// "lembrar: horario: 9h às 18h". The message must mention "lembrar" or
// "salvar"; the first match wins and both parts must be non-blank after
// trimming.
func DetectMemory(msg string) (key, value string, ok bool) {
	lower := strings.ToLower(msg)
	if !strings.Contains(lower, "lembrar") && !strings.Contains(lower, "salvar") {
		return "", "", false
	}
	m := memoryPattern.FindStringSubmatch(msg)
	if m == nil {
		return "", "", false
	}
	key, value = strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	if key == "" || value == "" {
		return "", "", false
	}
	return key, value, true
}
