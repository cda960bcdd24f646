package web

import (
	"bytes"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTemplatesRequiresPages(t *testing.T) {
	_, err := NewTemplates(fstest.MapFS{
		"layouts/base.html": {Data: []byte(`{{define "base"}}{{end}}`)},
	})
	assert.Error(t, err)
}

func TestTemplatesRender(t *testing.T) {
	tmpl, err := NewTemplates(fstest.MapFS{
		"layouts/base.html": {Data: []byte(`{{define "base"}}<title>{{.Title}}</title>{{template "content" .}}{{end}}`)},
		"pages/ok.html":     {Data: []byte(`{{define "content"}}<p style="color: {{moodColor 0 1}}">ok</p>{{end}}`)},
		"pages/broken.html": {Data: []byte(`{{define "content"}}start{{.Missing.Field}}{{end}}`)},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tmpl.Render(&buf, "ok", PageData{Title: "Hi"}))
	assert.Contains(t, buf.String(), "<title>Hi</title>")
	assert.Contains(t, buf.String(), "hsl(264, 100%, 60%)")

	buf.Reset()
	assert.Error(t, tmpl.Render(&buf, "broken", PageData{}))
	assert.Empty(t, buf.String(), "failed pages write nothing")

	assert.Error(t, tmpl.Render(&buf, "missing", nil))
}
