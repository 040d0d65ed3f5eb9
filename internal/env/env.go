package env

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Required credential variables. The installer refuses to proceed when any
// of these is absent or empty after all .env files are loaded.
var RequiredVars = []string{
	"SKYBRIDGE_TOKEN",
	"SKYBRIDGE_TENANT_ID",
	"SKYBRIDGE_AGENT_ID",
}

// LoadDotEnvFiles loads variables from .env style files without overriding
// already-set env vars. Priority (later wins only if env var is still unset):
// 1) explicit envFile
// 2) <dataDir>/.env
// 3) ./.env
func LoadDotEnvFiles(envFile string, dataDir string) error {
	paths := make([]string, 0, 3)
	if strings.TrimSpace(envFile) != "" {
		paths = append(paths, envFile)
	}
	if strings.TrimSpace(dataDir) != "" {
		paths = append(paths, filepath.Join(dataDir, ".env"))
	}
	paths = append(paths, ".env")

	var lastErr error
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := LoadDotEnvFile(p); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// LoadDotEnvFile parses one .env file into the process environment. The
// content is validated first; a malformed file is rejected with the
// line-numbered problems instead of silently skipping lines. Values already
// present in the environment win.
func LoadDotEnvFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	content := string(data)
	if problems := ValidateContent(content); len(problems) > 0 {
		return fmt.Errorf("%s: %s", path, strings.Join(problems, "; "))
	}

	for lineNo, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		val = strings.TrimSpace(val)
		val = strings.Trim(val, `"'`)

		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, val); err != nil {
			return fmt.Errorf("%s:%d: %w", path, lineNo+1, err)
		}
	}
	return nil
}

// CheckRequired returns the names of required credential variables that are
// missing or empty in the current environment.
func CheckRequired() []string {
	var missing []string
	for _, key := range RequiredVars {
		if strings.TrimSpace(os.Getenv(key)) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// ValidateContent checks .env file content line by line and returns a list
// of human-readable problems. An empty list means the content is well-formed.
func ValidateContent(content string) []string {
	var errors []string
	lines := strings.Split(content, "\n")

	for i, line := range lines {
		lineNum := i + 1
		trimmedLine := strings.TrimSpace(line)

		// skip empty line and comment line
		if trimmedLine == "" || strings.HasPrefix(trimmedLine, "#") {
			continue
		}
		if strings.HasPrefix(trimmedLine, "export ") {
			trimmedLine = strings.TrimSpace(strings.TrimPrefix(trimmedLine, "export "))
		}

		if !strings.Contains(trimmedLine, "=") {
			errors = append(errors, fmt.Sprintf("line %d: missing equal sign", lineNum))
			continue
		}

		parts := strings.SplitN(trimmedLine, "=", 2)
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if key == "" {
			errors = append(errors, fmt.Sprintf("line %d: key can not be empty", lineNum))
			continue
		}
		if !IsValidKey(key) {
			errors = append(errors, fmt.Sprintf("line %d: key '%s' format invalid, only allow letters, numbers and underscores", lineNum, key))
			continue
		}
		if !IsValidValue(value) {
			errors = append(errors, fmt.Sprintf("line %d: value '%s' quote not match", lineNum, value))
		}
	}

	return errors
}

// IsValidKey reports whether key is a well-formed env var name.
func IsValidKey(key string) bool {
	if key == "" {
		return false
	}

	firstChar := key[0]
	if !((firstChar >= 'A' && firstChar <= 'Z') ||
		(firstChar >= 'a' && firstChar <= 'z') ||
		firstChar == '_') {
		return false
	}

	for _, char := range key[1:] {
		if !((char >= 'A' && char <= 'Z') ||
			(char >= 'a' && char <= 'z') ||
			(char >= '0' && char <= '9') ||
			char == '_') {
			return false
		}
	}

	return true
}

// IsValidValue reports whether a value's quoting is balanced.
func IsValidValue(value string) bool {
	if value == "" {
		return true
	}

	if strings.HasPrefix(value, "'") {
		return strings.HasSuffix(value, "'") && len(value) >= 2
	}
	if strings.HasPrefix(value, "\"") {
		return strings.HasSuffix(value, "\"") && len(value) >= 2
	}

	return true
}
