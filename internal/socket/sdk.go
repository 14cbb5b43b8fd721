package socket

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"unicode"
)

// SDKRequest describes the agent starter kit a client asked for.
type SDKRequest struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

const (
	defaultSDKName        = "AxiomAgent"
	defaultSDKType        = "custom"
	defaultSDKDescription = "Custom Axiom Agent"
)

func (r SDKRequest) withDefaults() SDKRequest {
	if strings.TrimSpace(r.Name) == "" {
		r.Name = defaultSDKName
	}
	if strings.TrimSpace(r.Type) == "" {
		r.Type = defaultSDKType
	}
	if strings.TrimSpace(r.Description) == "" {
		r.Description = defaultSDKDescription
	}
	return r
}

// ArchiveName is the file name offered to the client.
func (r SDKRequest) ArchiveName() string {
	return r.withDefaults().Name + "-SDK.zip"
}

// agent behaviour per kit type; unknown types get the custom skeleton.
var sdkMethods = map[string][]string{
	"defi":      {"executeTrade", "monitorMarket"},
	"social":    {"postUpdate", "monitorMentions"},
	"analytics": {"collectData", "generateReport"},
	"custom":    {"handleMessage"},
}

var indexTmpl = template.Must(template.New("index.js").Parse(`// index.js - {{.Summary}}
import { AxiomAgent } from '@axiom-id/sdk';

class {{.Class}} extends AxiomAgent {
  async initialize() {
    await super.initialize();
    console.log('{{.Class}} initialized');
  }
{{range .Methods}}
  async {{.}}(input) {
    return { ok: true, input };
  }
{{end}}}

export default {{.Class}};
`))

var readmeTmpl = template.Must(template.New("README.md").Parse(`# {{.Name}}

{{.Description}}

## Installation

    npm install

## Usage

    import {{.Class}} from './index.js';

    const agent = new {{.Class}}({});
    await agent.initialize();

## License

MIT
`))

// BuildSDK renders the starter kit as a zip archive.
func BuildSDK(req SDKRequest) ([]byte, error) {
	req = req.withDefaults()
	methods, ok := sdkMethods[strings.ToLower(req.Type)]
	if !ok {
		methods = sdkMethods[defaultSDKType]
	}
	view := struct {
		SDKRequest
		Class   string
		Summary string
		Methods []string
	}{req, className(req.Name), oneLine(req.Description), methods}

	pkg, err := json.MarshalIndent(map[string]any{
		"name":         packageName(req.Name),
		"version":      "1.0.0",
		"description":  req.Description,
		"main":         "index.js",
		"type":         "module",
		"scripts":      map[string]string{"start": "node index.js"},
		"dependencies": map[string]string{"@axiom-id/sdk": "^1.0.0"},
		"keywords":     []string{"axiom-agent", req.Type},
		"license":      "MIT",
	}, "", "  ")
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := []struct {
		name string
		tmpl *template.Template
		raw  []byte
	}{
		{name: "package.json", raw: pkg},
		{name: "README.md", tmpl: readmeTmpl},
		{name: "index.js", tmpl: indexTmpl},
	}
	for _, f := range files {
		w, err := zw.Create(f.name)
		if err != nil {
			return nil, fmt.Errorf("add %s: %w", f.name, err)
		}
		if f.tmpl != nil {
			err = f.tmpl.Execute(w, view)
		} else {
			_, err = w.Write(f.raw)
		}
		if err != nil {
			return nil, fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// oneLine collapses every run of whitespace, line breaks included, to a
// single space so the text stays inside a // comment.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// className turns "my defi bot" into "MyDefiBot".
func className(name string) string {
	var b strings.Builder
	upper := true
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if b.Len() == 0 && unicode.IsDigit(r) {
			b.WriteString("Agent")
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	if b.Len() == 0 {
		return defaultSDKName
	}
	return b.String()
}

func packageName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.', r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "axiom-agent"
	}
	return b.String()
}
