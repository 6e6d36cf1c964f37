package knowledge

import (
	"bytes"
	"fmt"
	"text/template"
)

// Provider supplies the business context injected as the first turn of every session.
type Provider interface {
	Context() string
}

const contextTemplate = `{{.Role}}
{{if .Services}}
บริการของเรา:
{{range .Services}}- {{.}}
{{end}}{{end}}{{if .Facts}}
ข้อมูลสำคัญ:
{{range .Facts}}- {{.}}
{{end}}{{end}}{{if .Prices}}
ราคา:
{{range .Prices}}- {{.Item}} {{.Price}}
{{end}}{{end}}{{if .Promotions}}
โปรโมชั่น:
{{range .Promotions}}- {{.}}
{{end}}{{end}}
{{.Tone}}
{{range .Directives}}{{.}}
{{end}}`

var contextTmpl = template.Must(template.New("business_context").Option("missingkey=error").Parse(contextTemplate))

// StaticProvider renders a profile once and serves the same text for the life of the process.
type StaticProvider struct {
	text string
}

// NewStaticProvider validates and renders the profile.
func NewStaticProvider(profile Profile) (*StaticProvider, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	text, err := Render(profile)
	if err != nil {
		return nil, err
	}
	return &StaticProvider{text: text}, nil
}

// Context returns the rendered business context.
func (p *StaticProvider) Context() string {
	return p.text
}

// Render formats a profile into the prompt text.
func Render(profile Profile) (string, error) {
	var buf bytes.Buffer
	if err := contextTmpl.Execute(&buf, profile); err != nil {
		return "", fmt.Errorf("knowledge: render context: %w", err)
	}
	return buf.String(), nil
}
