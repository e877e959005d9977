package dialog

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/template"
)

const maxTemplateOutput = 64 * 1024

// templateCache caches parsed templates to avoid re-parsing on every call.
var templateCache sync.Map

// TemplateData is available to prompt and message templates.
type TemplateData struct {
	Values   map[string]any
	Intent   string
	Entities map[string]any
	Text     string
}

// NewTemplateData collects template data from the turn and accumulated values.
func NewTemplateData(turn *Turn, values map[string]any) TemplateData {
	return TemplateData{
		Values:   values,
		Intent:   turn.State.Intent,
		Entities: turn.State.Entities,
		Text:     turn.Activity.Text,
	}
}

// EvalCondition evaluates a template condition.
// Returns true if the result is non-empty and not "false".
func EvalCondition(condition string, data TemplateData) (bool, error) {
	if condition == "" {
		return false, nil
	}

	result, err := renderTemplate(condition, data)
	if err != nil {
		return false, err
	}

	result = strings.TrimSpace(result)
	return result != "" && result != "false" && result != "<no value>", nil
}

// Render evaluates a template string. Plain strings are returned unchanged.
func Render(tmpl string, data TemplateData) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}
	return renderTemplate(tmpl, data)
}

// limitWriter caps output from template.Execute.
type limitWriter struct {
	w       io.Writer
	n       int64
	written int64
}

func (lw *limitWriter) Write(p []byte) (int, error) {
	if lw.written+int64(len(p)) > lw.n {
		allowed := lw.n - lw.written
		if allowed > 0 {
			n, err := lw.w.Write(p[:allowed])
			lw.written += int64(n)
			if err != nil {
				return n, err
			}
		}
		return 0, fmt.Errorf("template output exceeds %d bytes", lw.n)
	}
	n, err := lw.w.Write(p)
	lw.written += int64(n)
	return n, err
}

// parseTemplate parses and caches tmplStr.
func parseTemplate(tmplStr string) (*template.Template, error) {
	if cached, ok := templateCache.Load(tmplStr); ok {
		return cached.(*template.Template), nil
	}
	tmpl, err := template.New("").Option("missingkey=zero").Parse(tmplStr)
	if err != nil {
		return nil, err
	}
	templateCache.Store(tmplStr, tmpl)
	return tmpl, nil
}

func renderTemplate(tmplStr string, data TemplateData) (string, error) {
	tmpl, err := parseTemplate(tmplStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	lw := &limitWriter{w: &buf, n: maxTemplateOutput}
	if err := tmpl.Execute(lw, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
