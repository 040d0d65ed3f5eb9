package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Template is the agent.yaml shipped with the installer. Placeholders are
// replaced by Materialize from the operator's environment.
const Template = `# skybridge agent configuration
token: "{{TOKEN}}"
tenant_id: "{{TENANT_ID}}"
agent_id: "{{AGENT_ID}}"
cloud_url: "{{CLOUD_URL}}"
log_level: "{{LOG_LEVEL}}"
ui_port: 8090
metrics_port: 9188
heartbeat_seconds: 30
runtime:
  uid: 6842
  gid: 6842
ui:
  username: admin
  jwt_expiry_minutes: 1440
`

var placeholderRe = regexp.MustCompile(`\{\{[A-Z_]+\}\}`)

// Substitutions maps placeholder names to values. Keys are the bare names,
// without braces.
type Substitutions map[string]string

// Materialize writes the config template to path if absent, then replaces
// placeholders in place. Rerunning is safe: substitution applies to whatever
// is on disk, so values already substituted are left alone. After
// substitution the file must not contain any remaining placeholder; a
// leftover means the operator's environment was incomplete.
func Materialize(path string, subs Substitutions) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte(Template), 0o600); err != nil {
			return fmt.Errorf("write config template: %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %v", err)
	}

	content := string(data)
	for name, value := range subs {
		if value == "" {
			continue
		}
		content = strings.ReplaceAll(content, "{{"+name+"}}", value)
	}

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write config file: %v", err)
	}

	if leftovers := FindPlaceholders(content); len(leftovers) > 0 {
		return fmt.Errorf("config still contains unsubstituted placeholders: %s", strings.Join(leftovers, ", "))
	}
	return nil
}

// FindPlaceholders returns the distinct {{NAME}} tokens present in content.
func FindPlaceholders(content string) []string {
	found := placeholderRe.FindAllString(content, -1)
	seen := make(map[string]bool, len(found))
	var out []string
	for _, p := range found {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
