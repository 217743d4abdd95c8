package config

import (
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
)

var (
	withDefault = regexp.MustCompile(`\{\{\s*env\.([A-Za-z_][A-Za-z0-9_]*)\s*\|\s*default\((.*?)\)\s*\}\}`)
	bareEnv     = regexp.MustCompile(`\{\{\s*env\.([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)
)

// LoadEnvFiles loads .env.local then .env from the current directory,
// each optional; values already set in the process environment are not
// overridden.
func LoadEnvFiles() error {
	for _, f := range []string{".env.local", ".env"} {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// RenderEnvTemplates substitutes every `{{ env.VAR | default("...") }}`
// and `{{ env.VAR }}` occurrence in s. An unset variable with no
// default renders to the empty string rather than erroring --
// undefined-variable failures are silent by design, so a typo in a
// config file never aborts the whole load.
func RenderEnvTemplates(s string) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	s = withDefault.ReplaceAllStringFunc(s, func(m string) string {
		parts := withDefault.FindStringSubmatch(m)
		val := os.Getenv(parts[1])
		if val != "" {
			return val
		}
		return unquoteDefault(parts[2])
	})
	s = bareEnv.ReplaceAllStringFunc(s, func(m string) string {
		parts := bareEnv.FindStringSubmatch(m)
		return os.Getenv(parts[1])
	})
	return s
}

func unquoteDefault(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) >= 2 && (raw[0] == '"' || raw[0] == '\'') && raw[len(raw)-1] == raw[0] {
		return raw[1 : len(raw)-1]
	}
	return raw
}

// renderTree walks a decoded YAML value (map[string]any / []any /
// scalar) and applies RenderEnvTemplates to every string leaf.
func renderTree(v any) any {
	switch t := v.(type) {
	case string:
		return RenderEnvTemplates(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = renderTree(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = renderTree(val)
		}
		return out
	default:
		return v
	}
}
