// templates/templates.go
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	sprig "github.com/go-task/slim-sprig/v3"

	"github.com/gewnthar/registers/models"
)

//go:embed html/*.html
var files embed.FS

const layout = "html/layout.html"

// Renderer holds one template set per page, each parsed with the shared
// layout.
type Renderer struct {
	pages map[string]*template.Template
}

// FuncMap is the sprig function set plus the helpers pages use.
func FuncMap() template.FuncMap {
	funcs := sprig.FuncMap()
	funcs["ago"] = ago
	funcs["formatDate"] = models.FormatDate
	funcs["comma"] = func(n int) string {
		return humanize.Comma(int64(n))
	}
	return funcs
}

// ago renders a time.Time or *time.Time relative to now.
func ago(t any) string {
	switch v := t.(type) {
	case time.Time:
		return humanize.Time(v)
	case *time.Time:
		if v != nil {
			return humanize.Time(*v)
		}
	}
	return "never"
}

func New() (*Renderer, error) {
	base, err := template.New("layout").Funcs(FuncMap()).ParseFS(files, layout)
	if err != nil {
		return nil, fmt.Errorf("failed to parse layout: %w", err)
	}

	names, err := fs.Glob(files, "html/*.html")
	if err != nil {
		return nil, err
	}
	r := &Renderer{pages: map[string]*template.Template{}}
	for _, name := range names {
		if name == layout {
			continue
		}
		page, err := template.Must(base.Clone()).ParseFS(files, name)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		r.pages[strings.TrimSuffix(path.Base(name), ".html")] = page
	}
	return r, nil
}

// Render executes page into w. The page is rendered to a buffer first so a
// template error never leaves a half written response.
func (r *Renderer) Render(w io.Writer, page string, data any) error {
	t, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		return fmt.Errorf("failed to render %s: %w", page, err)
	}
	_, err := buf.WriteTo(w)
	return err
}
