package server

import (
	"bytes"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/html"

	"github.com/wudi/pdfcapture/builder"
	"github.com/wudi/pdfcapture/capture"
	"github.com/wudi/pdfcapture/workflow"
)

func samplePDF(t *testing.T) []byte {
	t.Helper()
	data, err := builder.New().
		SetDefaultMediaBox(builder.Letter).
		AddPage(builder.Page{}).
		AddPage(builder.Page{}).
		AddPage(builder.Page{Rotate: 90}).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func newTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	s := New(cfg)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Close()
	})
	return s, ts
}

func do(t *testing.T, method, u, contentType string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, u, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func postJSON(t *testing.T, u string, v any) *http.Response {
	t.Helper()
	body, _ := json.Marshal(v)
	return do(t, http.MethodPost, u, "application/json", body)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: status %d, want %d: %s", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want, body)
	}
}

// openSession uploads data and waits until the document leaves the loading state.
func openSession(t *testing.T, ts *httptest.Server, data []byte) stateResponse {
	t.Helper()
	resp := do(t, http.MethodPost, ts.URL+"/sessions?name=sample.pdf", "application/pdf", data)
	expectStatus(t, resp, http.StatusCreated)
	st := decode[stateResponse](t, resp)
	return waitLoaded(t, ts, st.ID)
}

func waitLoaded(t *testing.T, ts *httptest.Server, id string) stateResponse {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp := do(t, http.MethodGet, ts.URL+"/sessions/"+id, "", nil)
		expectStatus(t, resp, http.StatusOK)
		st := decode[stateResponse](t, resp)
		if st.Status != "loading" {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatal("document did not load")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionLifecycle(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	st := openSession(t, ts, samplePDF(t))
	if st.Status != "ready" || st.Page != 1 || st.TotalPages != 3 || st.Scale != 1 || st.Name != "sample.pdf" {
		t.Fatalf("state = %+v", st)
	}
	if st.Controls.Previous || !st.Controls.Next || !st.Controls.ZoomIn || !st.Controls.ZoomOut {
		t.Errorf("controls = %+v", st.Controls)
	}
	base := ts.URL + "/sessions/" + st.ID

	resp := postJSON(t, base+"/navigate", navigateRequest{Offset: 10})
	expectStatus(t, resp, http.StatusOK)
	if st := decode[stateResponse](t, resp); st.Page != 3 || st.Controls.Next {
		t.Errorf("after navigate +10: %+v", st)
	}

	list := decode[[]stateResponse](t, do(t, http.MethodGet, ts.URL+"/sessions", "", nil))
	if len(list) != 1 || list[0].ID != st.ID {
		t.Errorf("list = %+v", list)
	}

	expectStatus(t, do(t, http.MethodDelete, base, "", nil), http.StatusNoContent)
	expectStatus(t, do(t, http.MethodGet, base, "", nil), http.StatusNotFound)
	expectStatus(t, do(t, http.MethodDelete, base, "", nil), http.StatusNotFound)
}

func TestPageImage(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	st := openSession(t, ts, samplePDF(t))
	base := ts.URL + "/sessions/" + st.ID

	size := func(query string) (int, int) {
		resp := do(t, http.MethodGet, base+"/page.png"+query, "", nil)
		expectStatus(t, resp, http.StatusOK)
		img, err := png.Decode(resp.Body)
		if err != nil {
			t.Fatal(err)
		}
		return img.Bounds().Dx(), img.Bounds().Dy()
	}

	if w, h := size(""); w != 612 || h != 792 {
		t.Errorf("page at scale 1 = %dx%d, want 612x792", w, h)
	}
	expectStatus(t, postJSON(t, base+"/zoom", zoomRequest{Delta: 1}), http.StatusOK)
	if w, h := size(""); w != 1224 || h != 1584 {
		t.Errorf("page at scale 2 = %dx%d, want 1224x1584", w, h)
	}
	if w, h := size("?max=396"); w != 306 || h != 396 {
		t.Errorf("thumbnail = %dx%d, want 306x396", w, h)
	}
	expectStatus(t, do(t, http.MethodGet, base+"/page.png?max=x", "", nil), http.StatusBadRequest)
}

func TestClickAndSelections(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	st := openSession(t, ts, samplePDF(t))
	base := ts.URL + "/sessions/" + st.ID

	resp := postJSON(t, base+"/click", clickRequest{X: 36, Y: 36})
	expectStatus(t, resp, http.StatusOK)
	if sel := decode[capture.Selection](t, resp); sel != (capture.Selection{Page: 1, X: 12.7, Y: 12.7}) {
		t.Errorf("click = %+v", sel)
	}
	expectStatus(t, postJSON(t, base+"/click", clickRequest{X: -5, Y: 10}), http.StatusBadRequest)
	expectStatus(t, do(t, http.MethodPost, base+"/click", "application/json", []byte("{")), http.StatusBadRequest)

	sels := decode[[]capture.Selection](t, do(t, http.MethodGet, base+"/selections", "", nil))
	if len(sels) != 1 {
		t.Errorf("selections = %+v, want one", sels)
	}
}

func TestAnchors(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	st := openSession(t, ts, samplePDF(t))
	base := ts.URL + "/sessions/" + st.ID

	expectStatus(t, postJSON(t, base+"/arm", armRequest{Kind: "stamp"}), http.StatusBadRequest)
	resp := postJSON(t, base+"/arm", armRequest{Kind: "signature", Label: "Customer"})
	expectStatus(t, resp, http.StatusOK)
	if st := decode[stateResponse](t, resp); st.Armed != "signature: Customer" {
		t.Errorf("armed = %q", st.Armed)
	}
	expectStatus(t, postJSON(t, base+"/click", clickRequest{X: 72, Y: 144}), http.StatusOK)

	step := decode[workflow.Step](t, do(t, http.MethodGet, base+"/anchors", "", nil))
	if len(step.Anchors) != 1 {
		t.Fatalf("anchors = %+v", step.Anchors)
	}
	a := step.Anchors[0]
	if a.Kind != workflow.AnchorSignature || a.Page != 1 || a.X != 25.4 || a.Y != 50.8 {
		t.Errorf("anchor = %+v", a)
	}

	expectStatus(t, do(t, http.MethodDelete, base+"/anchors/"+a.ID, "", nil), http.StatusNoContent)
	expectStatus(t, do(t, http.MethodDelete, base+"/anchors/"+a.ID, "", nil), http.StatusNotFound)
}

func TestStoredWorkflowStep(t *testing.T) {
	dir := t.TempDir()
	docPath := filepath.Join(dir, "contract.pdf")
	if err := os.WriteFile(docPath, samplePDF(t), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := workflow.OpenStore(filepath.Join(dir, "workflows.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	wf := workflow.New("Onboarding")
	step := wf.AddStep("Sign", docPath)
	if _, err := store.Put(*wf); err != nil {
		t.Fatal(err)
	}

	_, ts := newTestServer(t, Config{Store: store, AllowPaths: true})
	resp := postJSON(t, ts.URL+"/sessions", createRequest{Path: docPath, Workflow: wf.ID, Step: step.ID})
	expectStatus(t, resp, http.StatusCreated)
	st := waitLoaded(t, ts, decode[stateResponse](t, resp).ID)
	base := ts.URL + "/sessions/" + st.ID

	expectStatus(t, postJSON(t, base+"/arm", armRequest{Kind: "field", Label: "Date"}), http.StatusOK)
	expectStatus(t, postJSON(t, base+"/click", clickRequest{X: 72, Y: 72}), http.StatusOK)

	reopened, err := workflow.OpenStore(store.Path())
	if err != nil {
		t.Fatal(err)
	}
	got, _ := reopened.Get(wf.ID)
	if len(got.Steps) != 1 || len(got.Steps[0].Anchors) != 1 || got.Steps[0].Anchors[0].Label != "Date" {
		t.Errorf("stored workflow = %+v", got)
	}

	resp = postJSON(t, ts.URL+"/sessions", createRequest{Path: docPath, Workflow: wf.ID, Step: "missing"})
	expectStatus(t, resp, http.StatusNotFound)
}

func TestCreateErrors(t *testing.T) {
	_, ts := newTestServer(t, Config{MaxSessions: 1})
	expectStatus(t, postJSON(t, ts.URL+"/sessions", createRequest{Path: "/etc/passwd"}), http.StatusForbidden)
	expectStatus(t, postJSON(t, ts.URL+"/sessions", createRequest{URL: "http://example.com/a.pdf"}), http.StatusForbidden)
	expectStatus(t, postJSON(t, ts.URL+"/sessions", createRequest{}), http.StatusBadRequest)
	expectStatus(t, do(t, http.MethodPost, ts.URL+"/sessions", "application/pdf", nil), http.StatusBadRequest)

	st := openSession(t, ts, []byte("not a pdf"))
	if st.Status != "failed" || st.Error == "" {
		t.Errorf("state = %+v, want failed", st)
	}
	expectStatus(t, do(t, http.MethodGet, ts.URL+"/sessions/"+st.ID+"/page.png", "", nil), http.StatusUnprocessableEntity)

	resp := do(t, http.MethodPost, ts.URL+"/sessions", "application/pdf", samplePDF(t))
	expectStatus(t, resp, http.StatusTooManyRequests)
}

func TestExpireIdle(t *testing.T) {
	s, ts := newTestServer(t, Config{SessionTTL: time.Minute})
	st := openSession(t, ts, samplePDF(t))

	if n := s.ExpireIdle(); n != 0 {
		t.Fatalf("ExpireIdle() closed %d fresh sessions", n)
	}
	s.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if n := s.ExpireIdle(); n != 1 {
		t.Fatalf("ExpireIdle() = %d, want 1", n)
	}
	expectStatus(t, do(t, http.MethodGet, ts.URL+"/sessions/"+st.ID, "", nil), http.StatusNotFound)
}

func TestHealthAndMetrics(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	openSession(t, ts, samplePDF(t))

	health := decode[map[string]any](t, do(t, http.MethodGet, ts.URL+"/healthz", "", nil))
	if health["status"] != "ok" || health["sessions"] != float64(1) {
		t.Errorf("healthz = %v", health)
	}

	want := []string{
		"pdfcapture_sessions_open 1",
		`pdfcapture_sessions_created_total{source="upload"} 1`,
		"pdfcapture_document_pages_count 1",
	}
	// The load metrics listener may still be running when the session is ready.
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp := do(t, http.MethodGet, ts.URL+"/metrics", "", nil)
		expectStatus(t, resp, http.StatusOK)
		body, _ := io.ReadAll(resp.Body)
		var missing []string
		for _, w := range want {
			if !strings.Contains(string(body), w) {
				missing = append(missing, w)
			}
		}
		if len(missing) == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("metrics missing %q", missing)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// findByID returns the element with the given id attribute.
func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Key == "id" && a.Val == id {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

func view(t *testing.T, ts *httptest.Server, id string) *html.Node {
	t.Helper()
	resp := do(t, http.MethodGet, ts.URL+"/sessions/"+id+"/view", "", nil)
	expectStatus(t, resp, http.StatusOK)
	doc, err := html.Parse(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestViewer(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	st := openSession(t, ts, samplePDF(t))
	base := ts.URL + "/sessions/" + st.ID

	doc := view(t, ts, st.ID)
	prev, next := findByID(doc, "previous"), findByID(doc, "next")
	if prev == nil || next == nil || findByID(doc, "surface") == nil {
		t.Fatal("viewer is missing toolbar buttons or the page image")
	}
	if !hasAttr(prev, "disabled") || hasAttr(next, "disabled") {
		t.Error("previous should be disabled and next enabled on page 1")
	}
	if got := text(findByID(doc, "page")); got != "Page 1 of 3" {
		t.Errorf("page label = %q", got)
	}

	form := func(action string, values url.Values) *http.Response {
		return do(t, http.MethodPost, base+"/view/"+action, "application/x-www-form-urlencoded", []byte(values.Encode()))
	}
	resp := form("navigate", url.Values{"offset": {"1"}})
	expectStatus(t, resp, http.StatusSeeOther)
	if loc := resp.Header.Get("Location"); loc != "/sessions/"+st.ID+"/view" {
		t.Errorf("redirect = %q", loc)
	}
	expectStatus(t, form("zoom", url.Values{"delta": {"0.25"}}), http.StatusSeeOther)
	expectStatus(t, form("click", url.Values{"at.x": {"90"}, "at.y": {"45"}}), http.StatusSeeOther)

	doc = view(t, ts, st.ID)
	if got := text(findByID(doc, "scale")); got != "125%" {
		t.Errorf("scale label = %q", got)
	}
	if rows := text(findByID(doc, "selections")); !strings.Contains(rows, "25.40") || !strings.Contains(rows, "12.70") {
		t.Errorf("selections table = %q", rows)
	}

	resp = form("click", url.Values{"at.x": {"5000"}, "at.y": {"5"}})
	expectStatus(t, resp, http.StatusSeeOther)
	if !strings.Contains(resp.Header.Get("Location"), "error=") {
		t.Error("out-of-page click should report an error")
	}

	expectStatus(t, form("bogus", nil), http.StatusNotFound)
	expectStatus(t, form("close", nil), http.StatusOK)
	expectStatus(t, do(t, http.MethodGet, base, "", nil), http.StatusNotFound)
}

func openStoredStep(t *testing.T, ts *httptest.Server, docPath, wfID, stepID string) string {
	t.Helper()
	resp := postJSON(t, ts.URL+"/sessions", createRequest{Path: docPath, Workflow: wfID, Step: stepID})
	expectStatus(t, resp, http.StatusCreated)
	return ts.URL + "/sessions/" + waitLoaded(t, ts, decode[stateResponse](t, resp).ID).ID
}

func TestStoredStepSharedBySessions(t *testing.T) {
	dir := t.TempDir()
	docPath := filepath.Join(dir, "contract.pdf")
	if err := os.WriteFile(docPath, samplePDF(t), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := workflow.OpenStore(filepath.Join(dir, "workflows.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	wf := workflow.New("Onboarding")
	step := wf.AddStep("Sign", docPath)
	if _, err := store.Put(*wf); err != nil {
		t.Fatal(err)
	}
	_, ts := newTestServer(t, Config{Store: store, AllowPaths: true})

	first := openStoredStep(t, ts, docPath, wf.ID, step.ID)
	second := openStoredStep(t, ts, docPath, wf.ID, step.ID)
	for label, base := range map[string]string{"first": first, "second": second} {
		expectStatus(t, postJSON(t, base+"/arm", armRequest{Kind: "signature", Label: label}), http.StatusOK)
		expectStatus(t, postJSON(t, base+"/click", clickRequest{X: 72, Y: 72}), http.StatusOK)
	}

	stored := func() []workflow.Anchor {
		t.Helper()
		reopened, err := workflow.OpenStore(store.Path())
		if err != nil {
			t.Fatal(err)
		}
		got, _ := reopened.Get(wf.ID)
		return got.Steps[0].Anchors
	}
	if anchors := stored(); len(anchors) != 2 {
		t.Fatalf("stored anchors = %+v, want one from each session", anchors)
	}

	own := decode[workflow.Step](t, do(t, http.MethodGet, first+"/anchors", "", nil)).Anchors
	if len(own) != 1 {
		t.Fatalf("first session anchors = %+v", own)
	}
	expectStatus(t, do(t, http.MethodDelete, first+"/anchors/"+own[0].ID, "", nil), http.StatusNoContent)
	anchors := stored()
	if len(anchors) != 1 || anchors[0].Label != "second" {
		t.Errorf("stored anchors after removal = %+v, want the second session's", anchors)
	}
}

func TestStoreErrorSurfaced(t *testing.T) {
	dir := t.TempDir()
	docPath := filepath.Join(dir, "contract.pdf")
	if err := os.WriteFile(docPath, samplePDF(t), 0o644); err != nil {
		t.Fatal(err)
	}
	storeDir := filepath.Join(dir, "store")
	store, err := workflow.OpenStore(filepath.Join(storeDir, "workflows.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	wf := workflow.New("Onboarding")
	step := wf.AddStep("Sign", docPath)
	if _, err := store.Put(*wf); err != nil {
		t.Fatal(err)
	}
	_, ts := newTestServer(t, Config{Store: store, AllowPaths: true})
	base := openStoredStep(t, ts, docPath, wf.ID, step.ID)

	// A regular file where the store directory was makes every write fail.
	if err := os.RemoveAll(storeDir); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(storeDir, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	expectStatus(t, postJSON(t, base+"/arm", armRequest{Kind: "field"}), http.StatusOK)
	resp := postJSON(t, base+"/click", clickRequest{X: 72, Y: 72})
	expectStatus(t, resp, http.StatusInternalServerError)
	if e := decode[ErrorResponse](t, resp); !strings.Contains(e.Error, "saving anchor") {
		t.Errorf("error = %q", e.Error)
	}
	st := decode[stateResponse](t, do(t, http.MethodGet, base, "", nil))
	if st.StoreError == "" {
		t.Error("state does not report the store error")
	}

	// Unarmed clicks do not write, so they succeed.
	expectStatus(t, postJSON(t, base+"/click", clickRequest{X: 10, Y: 10}), http.StatusOK)

	anchors := decode[workflow.Step](t, do(t, http.MethodGet, base+"/anchors", "", nil)).Anchors
	if len(anchors) != 1 {
		t.Fatalf("anchors = %+v", anchors)
	}
	expectStatus(t, do(t, http.MethodDelete, base+"/anchors/"+anchors[0].ID, "", nil), http.StatusInternalServerError)
}

func TestStaleClick(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	st := openSession(t, ts, samplePDF(t))
	base := ts.URL + "/sessions/" + st.ID

	expectStatus(t, postJSON(t, base+"/click", clickRequest{X: 72, Y: 72, Page: 1, Scale: 1}), http.StatusOK)
	expectStatus(t, postJSON(t, base+"/navigate", navigateRequest{Offset: 1}), http.StatusOK)

	tests := []struct {
		name string
		req  clickRequest
		want int
	}{
		{"previous page", clickRequest{X: 72, Y: 72, Page: 1}, http.StatusConflict},
		{"other scale", clickRequest{X: 72, Y: 72, Page: 2, Scale: 1.5}, http.StatusConflict},
		{"current view", clickRequest{X: 72, Y: 72, Page: 2, Scale: 1}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectStatus(t, postJSON(t, base+"/click", tt.req), tt.want)
		})
	}
	sels := decode[[]capture.Selection](t, do(t, http.MethodGet, base+"/selections", "", nil))
	if len(sels) != 2 || sels[1].Page != 2 {
		t.Errorf("selections = %+v", sels)
	}

	form := url.Values{"at.x": {"72"}, "at.y": {"72"}, "page": {"1"}, "scale": {"1"}}
	resp := do(t, http.MethodPost, base+"/view/click", "application/x-www-form-urlencoded", []byte(form.Encode()))
	expectStatus(t, resp, http.StatusConflict)
	doc, err := html.Parse(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if findByID(doc, "error") == nil || text(findByID(doc, "page")) != "Page 2 of 3" {
		t.Error("stale viewer click should show the current page with an error")
	}
}

func TestPageImageAtView(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	st := openSession(t, ts, samplePDF(t))
	base := ts.URL + "/sessions/" + st.ID

	resp := do(t, http.MethodGet, base+"/page.png?page=3&scale=2", "", nil)
	expectStatus(t, resp, http.StatusOK)
	if resp.Header.Get("X-Page") != "3" || resp.Header.Get("X-Scale") != "2" {
		t.Errorf("headers X-Page=%q X-Scale=%q", resp.Header.Get("X-Page"), resp.Header.Get("X-Scale"))
	}
	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	// Page 3 is rotated Letter: 792x612 points.
	if b := img.Bounds(); b.Dx() != 1584 || b.Dy() != 1224 {
		t.Errorf("image = %dx%d, want 1584x1224", b.Dx(), b.Dy())
	}
	if st := decode[stateResponse](t, do(t, http.MethodGet, base, "", nil)); st.Page != 1 || st.Scale != 1 {
		t.Errorf("rendering another view moved the session: %+v", st)
	}

	for _, q := range []string{"page=x", "page=9", "scale=abc", "scale=50"} {
		expectStatus(t, do(t, http.MethodGet, base+"/page.png?"+q, "", nil), http.StatusBadRequest)
	}
}

func TestMalformedUploadFails(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	st := openSession(t, ts, []byte("%PDF- 1 0 obj << /Type /Catalog>>0"))
	if st.Status != "failed" || st.Error == "" {
		t.Fatalf("state = %+v, want failed", st)
	}
	expectStatus(t, do(t, http.MethodGet, ts.URL+"/sessions/"+st.ID+"/page.png", "", nil), http.StatusUnprocessableEntity)
	expectStatus(t, do(t, http.MethodGet, ts.URL+"/healthz", "", nil), http.StatusOK)
}
