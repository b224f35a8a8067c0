package gateway

import (
	"os"
	"strings"
)

// ParseEnvFile reads KEY=VALUE lines, skipping blanks and comments and
// accepting an optional "export " prefix and quoted values.
func ParseEnvFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	vars := make(map[string]string)
	for _, line := range splitLines(data) {
		s := strings.TrimSpace(string(line))
		if s == "" || s[0] == '#' {
			continue
		}
		s = strings.TrimPrefix(s, "export ")
		eqIdx := strings.IndexByte(s, '=')
		if eqIdx < 0 {
			continue
		}
		vars[strings.TrimSpace(s[:eqIdx])] = stripQuotes(s[eqIdx+1:])
	}
	return vars, nil
}

// LoadSecrets copies the env file into the process environment without
// overriding variables that are already set.
func LoadSecrets(path string) error {
	secrets, err := ParseEnvFile(path)
	if err != nil {
		return err
	}
	for k, v := range secrets {
		if os.Getenv(k) == "" {
			os.Setenv(k, v)
		}
	}
	return nil
}

func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, data[start:i])
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
