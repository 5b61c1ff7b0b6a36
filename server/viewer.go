package server

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"

	"github.com/wudi/pdfcapture/capture"
	"github.com/wudi/pdfcapture/observability"
	"github.com/wudi/pdfcapture/workflow"
)

var viewTemplate = template.Must(template.New("view").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.State.Name}}</title>
{{if eq .State.Status "loading"}}<meta http-equiv="refresh" content="1">{{end}}
<style>
body { font-family: sans-serif; margin: 1em; }
.toolbar form { display: inline; }
.toolbar { margin-bottom: 1em; }
.error { color: #b91c1c; }
input[type=image] { border: 1px solid #999; cursor: crosshair; }
</style>
</head>
<body>
<h1>{{.State.Name}}</h1>
{{with .Error}}<p class="error" id="error">{{.}}</p>{{end}}
{{if eq .State.Status "loading"}}
<p id="status">Loading document…</p>
{{else if eq .State.Status "failed"}}
<p class="error" id="status">Failed to load document: {{.State.Error}}</p>
{{else}}
<div class="toolbar">
  <form method="post" action="{{.Base}}/view/navigate"><input type="hidden" name="offset" value="-1"><button id="previous"{{if not .State.Controls.Previous}} disabled{{end}}>Previous</button></form>
  <span id="page">Page {{.State.Page}} of {{.State.TotalPages}}</span>
  <form method="post" action="{{.Base}}/view/navigate"><input type="hidden" name="offset" value="1"><button id="next"{{if not .State.Controls.Next}} disabled{{end}}>Next</button></form>
  <form method="post" action="{{.Base}}/view/zoom"><input type="hidden" name="delta" value="-{{.Step}}"><button id="zoom-out"{{if not .State.Controls.ZoomOut}} disabled{{end}}>-</button></form>
  <span id="scale">{{.Percent}}%</span>
  <form method="post" action="{{.Base}}/view/zoom"><input type="hidden" name="delta" value="{{.Step}}"><button id="zoom-in"{{if not .State.Controls.ZoomIn}} disabled{{end}}>+</button></form>
  <form method="post" action="{{.Base}}/view/arm">
    <select name="kind"><option value="signature">Signature</option><option value="field">Field</option><option value="">Off</option></select>
    <input name="label" placeholder="Label">
    <button id="arm">Place anchor</button>
  </form>
  {{with .State.Armed}}<span id="armed">Next click places {{.}}</span>{{end}}
  <form method="post" action="{{.Base}}/view/close"><button id="close">Close</button></form>
</div>
<form method="post" action="{{.Base}}/view/click">
  <input type="hidden" name="page" value="{{.State.Page}}">
  <input type="hidden" name="scale" value="{{.State.Scale}}">
  <input type="image" name="at" id="surface" src="{{.Base}}/page.png?page={{.State.Page}}&amp;scale={{.State.Scale}}&amp;v={{.Version}}" alt="Page {{.State.Page}}">
</form>
{{end}}
<h2>Selections</h2>
<table id="selections">
<tr><th>Page</th><th>X (mm)</th><th>Y (mm)</th></tr>
{{range .Selections}}<tr><td>{{.Page}}</td><td>{{printf "%.2f" .X}}</td><td>{{printf "%.2f" .Y}}</td></tr>
{{end}}</table>
<h2>Anchors</h2>
<table id="anchors">
<tr><th>Kind</th><th>Label</th><th>Page</th><th>X (mm)</th><th>Y (mm)</th></tr>
{{range .Anchors}}<tr><td>{{.Kind}}</td><td>{{.Label}}</td><td>{{.Page}}</td><td>{{printf "%.2f" .X}}</td><td>{{printf "%.2f" .Y}}</td></tr>
{{end}}</table>
</body>
</html>
`))

type viewData struct {
	State      stateResponse
	Base       string
	Step       float64
	Percent    int
	Version    int
	Error      string
	Selections []capture.Selection
	Anchors    []workflow.Anchor
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request, sess *session) {
	s.renderView(w, http.StatusOK, sess, r.URL.Query().Get("error"))
}

func (s *Server) renderView(w http.ResponseWriter, status int, sess *session, errMsg string) {
	st := sess.state()
	selections := sess.Selections()
	data := viewData{
		State:      st,
		Base:       "/sessions/" + sess.id,
		Step:       capture.ScaleStep,
		Percent:    int(st.Scale*100 + 0.5),
		Version:    len(selections),
		Error:      errMsg,
		Selections: selections,
		Anchors:    sess.designer.Step().Anchors,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := viewTemplate.Execute(w, data); err != nil {
		s.logger.Warn("rendering viewer", observability.Error("error", err))
	}
}

// handleViewAction applies a toolbar or page click from the viewer form and
// redirects back to it. A click on a page or scale the session has since left
// is answered with the current view and 409 Conflict.
func (s *Server) handleViewAction(w http.ResponseWriter, r *http.Request, sess *session) {
	if err := r.ParseForm(); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	var err error
	switch action := r.PathValue("action"); action {
	case "navigate":
		var offset int
		if offset, err = strconv.Atoi(r.PostForm.Get("offset")); err == nil {
			_, err = sess.tool.Navigate(offset)
		}
	case "zoom":
		var delta float64
		if delta, err = strconv.ParseFloat(r.PostForm.Get("delta"), 64); err == nil {
			_, err = sess.tool.Zoom(delta)
		}
	case "click":
		// Image inputs submit the click offset as <name>.x and <name>.y.
		x, errX := strconv.ParseFloat(r.PostForm.Get("at.x"), 64)
		y, errY := strconv.ParseFloat(r.PostForm.Get("at.y"), 64)
		if errX != nil || errY != nil {
			err = fmt.Errorf("%w: missing click position", errBadRequest)
			break
		}
		req := clickRequest{X: x, Y: y}
		if v := r.PostForm.Get("page"); v != "" {
			req.Page, err = strconv.Atoi(v)
		}
		if v := r.PostForm.Get("scale"); v != "" && err == nil {
			req.Scale, err = strconv.ParseFloat(v, 64)
		}
		if err != nil {
			err = fmt.Errorf("%w: bad page or scale", errBadRequest)
			break
		}
		if _, err = s.click(sess, req); errors.Is(err, capture.ErrStaleView) {
			s.renderView(w, http.StatusConflict, sess, err.Error())
			return
		}
	case "arm":
		err = s.arm(sess, r.PostForm.Get("kind"), r.PostForm.Get("label"))
	case "close":
		s.closeSession(sess.id)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<!DOCTYPE html><p id=\"status\">Session closed.</p>\n")
		return
	default:
		http.NotFound(w, r)
		return
	}

	target := "/sessions/" + sess.id + "/view"
	if err != nil {
		target += "?error=" + url.QueryEscape(err.Error())
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
