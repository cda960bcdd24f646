package web

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"
)

// Templates holds one parsed set per page. Each set carries the shared
// layouts and partials and is executed through the "base" layout.
type Templates struct {
	pages map[string]*template.Template
}

// NewTemplates parses pages/*.html from fsys, each with layouts/*.html and
// partials/*.html.
func NewTemplates(fsys fs.FS) (*Templates, error) {
	shared, err := globAll(fsys, "layouts/*.html", "partials/*.html")
	if err != nil {
		return nil, err
	}
	pageFiles, err := globAll(fsys, "pages/*.html")
	if err != nil {
		return nil, err
	}
	if len(pageFiles) == 0 {
		return nil, errors.New("no page templates found")
	}

	t := &Templates{pages: make(map[string]*template.Template, len(pageFiles))}
	for _, file := range pageFiles {
		name := strings.TrimSuffix(path.Base(file), path.Ext(file))
		set, err := template.New(name).
			Funcs(templateFuncs).
			ParseFS(fsys, append([]string{file}, shared...)...)
		if err != nil {
			return nil, fmt.Errorf("parsing page %s: %w", name, err)
		}
		t.pages[name] = set
	}
	return t, nil
}

func globAll(fsys fs.FS, patterns ...string) ([]string, error) {
	var out []string
	for _, p := range patterns {
		matches, err := fs.Glob(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("matching %s: %w", p, err)
		}
		out = append(out, matches...)
	}
	return out, nil
}

// Render executes page into w. Nothing is written if execution fails.
func (t *Templates) Render(w io.Writer, page string, data any) error {
	set, ok := t.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}

	var buf bytes.Buffer
	if err := set.ExecuteTemplate(&buf, "base", data); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

var templateFuncs = template.FuncMap{
	// moodColor places a point of the energy/valence plane on a colour
	// wheel: energy turns the hue from indigo to orange, valence brightens.
	// The result is built from numbers only, so it is safe as CSS.
	"moodColor": func(energy, valence float64) template.CSS {
		hue := 264 - energy*229
		return template.CSS(fmt.Sprintf("hsl(%.0f, %.0f%%, %.0f%%)", hue, 60+valence*40, 40+valence*20))
	},
	"formatTime": func(t time.Time) string {
		return t.Format("Jan 2, 2006 15:04")
	},
}

// PageData is shared by every page.
type PageData struct {
	Title string
	User  *UserData
}

type UserData struct {
	ID   string
	Name string
}

type HomePageData struct {
	PageData
	Authenticated  bool
	Configured     bool
	LastAnalyzedAt *time.Time
}

// CallbackPageData feeds the callback page, whose script posts Code to the
// token endpoint.
type CallbackPageData struct {
	PageData
	Code  string
	Error string
}
