package bridge

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// defaultPromptTemplate renders the sub-agent preamble. Knowledge is passed
// pre-sorted so the output is deterministic.
const defaultPromptTemplate = `You are a sub-agent working on a delegated task.

## Task
{{ .Task }}
{{- if .Constraints }}

## Constraints
{{- range .Constraints }}
- {{ . }}
{{- end }}
{{- end }}
{{- if .Knowledge }}

## Relevant knowledge
{{- range .Knowledge }}
- {{ .Key }}: {{ .Value }}
{{- end }}
{{- end }}
{{- if .ShortTerm }}

## Recent context
{{- range .ShortTerm }}
- {{ . }}
{{- end }}
{{- end }}
{{- if .LongTermRefs }}

## References
{{ join ", " .LongTermRefs }}
{{- end }}

Priority: {{ .Priority }} | Prompt version: {{ .PromptVersion }}
`

var templateFuncs = template.FuncMap{
	"default": func(defaultVal any, val any) any {
		if val == nil || val == "" {
			return defaultVal
		}
		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"join": func(sep string, items []string) string {
		return strings.Join(items, sep)
	},
	"indent": func(n int, s string) string {
		pad := strings.Repeat(" ", n)
		return pad + strings.ReplaceAll(s, "\n", "\n"+pad)
	},
}

// renderTemplate executes text against data. Text without template markers
// is returned unchanged.
func renderTemplate(text string, data any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	tmpl, err := template.New("system_prompt").Funcs(templateFuncs).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse prompt template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt template: %w", err)
	}
	return buf.String(), nil
}
