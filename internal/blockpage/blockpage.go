// Package blockpage renders the HTML page returned for anomaly
// blocks. Rendering is a pure function of a small view-model and
// lives outside the pipeline core.
package blockpage

import (
	"html/template"
	"io"
)

// View is the data exposed to the block page template. The
// correlation ID lets the blocked party quote the decision when
// filing feedback.
type View struct {
	ClientKey     string
	CorrelationID string
}

var page = template.Must(template.New("blocked").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Access Denied</title>
  <style>
    body { font-family: monospace; background: #111; color: #e33; text-align: center; padding-top: 10%; }
    .panel { display: inline-block; border: 1px solid #e33; padding: 2em 3em; }
    .meta { color: #888; font-size: 0.9em; margin-top: 1.5em; }
  </style>
</head>
<body>
  <div class="panel">
    <h1>&#9888; Access Denied</h1>
    <p>This request was flagged as anomalous and has been blocked.</p>
    <div class="meta">
      <p>Client: {{.ClientKey}}</p>
      <p>Reference: {{.CorrelationID}}</p>
      <p>If you believe this is a mistake, report the reference ID above.</p>
    </div>
  </div>
</body>
</html>
`))

// Render writes the block page for the given view.
func Render(w io.Writer, v View) error {
	return page.Execute(w, v)
}
