package render

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strings"
)

var panelTemplate = template.Must(template.New("panel").Parse(`{{if .IsError}}<div class="panel error">{{.Error}}</div>
{{else}}<div class="panel">
{{range $i, $s := .Sections}}<details{{if .Expanded}} open{{end}}><summary>{{if $.ToggleBase}}<form method="post" action="{{$.ToggleBase}}/sections/{{$i}}/toggle" class="toggle"><button>{{.Title}}</button></form>{{else}}{{.Title}}{{end}}</summary>
{{if .Content.IsLeaf}}<pre>{{.Content.Text}}</pre>
{{else}}<ul>{{range .Content.Items}}<li>{{.Key}}: {{.Value}}</li>{{end}}</ul>
{{end}}</details>
{{end}}</div>
{{end}}`))

type panelView struct {
	Panel
	ToggleBase string
}

// HTML writes the panel as a stack of <details> elements.
func HTML(w io.Writer, p Panel) error {
	return panelTemplate.Execute(w, panelView{Panel: p})
}

// HTMLFragment renders the panel for embedding in a page template. When
// toggleBase is set, each section title posts to
// toggleBase + "/sections/{index}/toggle" so the expanded state is kept
// server side.
func HTMLFragment(p Panel, toggleBase string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := panelTemplate.Execute(&buf, panelView{Panel: p, ToggleBase: toggleBase}); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// Text writes the panel for a terminal. Collapsed sections show only their title.
func Text(w io.Writer, p Panel) error {
	if p.IsError() {
		_, err := fmt.Fprintf(w, "error: %s\n", p.Error)
		return err
	}
	for _, s := range p.Sections {
		marker := "+"
		if s.Expanded {
			marker = "-"
		}
		if _, err := fmt.Fprintf(w, "[%s] %s\n", marker, s.Title); err != nil {
			return err
		}
		if !s.Expanded {
			continue
		}
		var lines []string
		if s.Content.IsLeaf() {
			lines = strings.Split(s.Content.Text, "\n")
		} else {
			for _, item := range s.Content.Items {
				lines = append(lines, item.String())
			}
		}
		for _, line := range lines {
			if _, err := fmt.Fprintf(w, "    %s\n", line); err != nil {
				return err
			}
		}
	}
	return nil
}
