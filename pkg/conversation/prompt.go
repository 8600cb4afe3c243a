package conversation

import (
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
)

// DefaultPromptTemplate flattens a history into a single completion prompt.
// .History holds every turn but the last one, .Input the content of the last turn.
const DefaultPromptTemplate = `The following is a conversation between a human and an AI assistant.

Current conversation:
{{ range .History -}}
{{ if eq .Role "human" }}Human{{ else }}AI{{ end }}: {{ .Content | trim }}
{{ end }}
Human: {{ .Input | trim }}
AI:`

type PromptData struct {
	History Conversation
	Input   string
}

func NewPromptData(c Conversation) PromptData {
	if len(c) == 0 {
		return PromptData{History: Conversation{}}
	}
	last := c[len(c)-1]
	return PromptData{
		History: c[:len(c)-1],
		Input:   last.Content,
	}
}

// RenderPrompt renders c through tmpl (DefaultPromptTemplate if empty).
// Sprig functions are available to the template.
func RenderPrompt(tmpl string, c Conversation) (string, error) {
	if tmpl == "" {
		tmpl = DefaultPromptTemplate
	}

	t, err := template.New("prompt").Funcs(sprig.TxtFuncMap()).Parse(tmpl)
	if err != nil {
		return "", errors.Wrap(err, "could not parse prompt template")
	}

	var sb strings.Builder
	if err := t.Execute(&sb, NewPromptData(c)); err != nil {
		return "", errors.Wrap(err, "could not render prompt template")
	}
	return sb.String(), nil
}
