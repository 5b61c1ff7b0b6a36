// Package builder writes small, structurally complete PDF files: a page tree
// with media boxes, rotation and a label drawn on every page. It produces
// fixtures and blank worksheets for anchor placement.
package builder

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zlib"

	"github.com/wudi/pdfcapture/coords"
)

// Common page sizes in points.
var (
	A4     = coords.Rect{URX: 595.28, URY: 841.89}
	Letter = coords.Rect{URX: 612, URY: 792}
)

var ErrNoPages = errors.New("document has no pages")

// Page describes one page. A zero MediaBox inherits the document default.
type Page struct {
	MediaBox coords.Rect
	CropBox  *coords.Rect
	Rotate   int
	Label    string
}

// Builder provides a fluent API for PDF construction.
type Builder struct {
	title      string
	defaultBox coords.Rect
	pages      []Page
	xrefStream bool
}

func New() *Builder { return &Builder{defaultBox: A4} }

func (b *Builder) SetTitle(title string) *Builder {
	b.title = title
	return b
}

// SetDefaultMediaBox stores box on the root page tree node; pages with a zero
// MediaBox inherit it.
func (b *Builder) SetDefaultMediaBox(box coords.Rect) *Builder {
	b.defaultBox = box
	return b
}

func (b *Builder) AddPage(p Page) *Builder {
	b.pages = append(b.pages, p)
	return b
}

// UseXRefStream writes a compressed cross-reference stream and packs the
// catalog and page dictionaries into an object stream (PDF 1.5+).
func (b *Builder) UseXRefStream(on bool) *Builder {
	b.xrefStream = on
	return b
}

type object struct {
	num      int
	body     string // dictionary or other direct object
	stream   []byte // set for stream objects
	inObjStm bool
}

func (b *Builder) objects() []object {
	n := len(b.pages)
	const catalog, pages, font, info = 1, 2, 3, 4
	objs := []object{
		{num: catalog, body: fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pages), inObjStm: true},
	}

	kids := make([]string, n)
	for i := range b.pages {
		kids[i] = fmt.Sprintf("%d 0 R", 5+2*i)
	}
	objs = append(objs,
		object{num: pages, body: fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d /MediaBox %s >>", strings.Join(kids, " "), n, rect(b.defaultBox)), inObjStm: true},
		object{num: font, body: "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>", inObjStm: true},
		object{num: info, body: fmt.Sprintf("<< /Title %s /Producer (pdfcapture builder) >>", literal(b.title)), inObjStm: true},
	)

	for i, p := range b.pages {
		pageNum, contentNum := 5+2*i, 6+2*i
		var d strings.Builder
		fmt.Fprintf(&d, "<< /Type /Page /Parent %d 0 R", pages)
		if !p.MediaBox.Empty() {
			fmt.Fprintf(&d, " /MediaBox %s", rect(p.MediaBox))
		}
		if p.CropBox != nil {
			fmt.Fprintf(&d, " /CropBox %s", rect(*p.CropBox))
		}
		if p.Rotate != 0 {
			fmt.Fprintf(&d, " /Rotate %d", p.Rotate)
		}
		fmt.Fprintf(&d, " /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>", font, contentNum)
		objs = append(objs,
			object{num: pageNum, body: d.String(), inObjStm: true},
			object{num: contentNum, stream: b.content(i, p)},
		)
	}
	return objs
}

func (b *Builder) content(i int, p Page) []byte {
	box := p.MediaBox
	if box.Empty() {
		box = b.defaultBox
	}
	box = box.Normalize()
	label := p.Label
	if label == "" {
		label = fmt.Sprintf("Page %d", i+1)
	}
	var c bytes.Buffer
	fmt.Fprintf(&c, "0.6 G 1 w %s %s %s %s re S\n",
		num(box.LLX+18), num(box.LLY+18), num(box.Width()-36), num(box.Height()-36))
	fmt.Fprintf(&c, "BT /F1 14 Tf %s %s Td %s Tj ET\n", num(box.LLX+36), num(box.URY-50), literal(label))
	return c.Bytes()
}

// Build serializes the document.
func (b *Builder) Build() ([]byte, error) {
	if len(b.pages) == 0 {
		return nil, ErrNoPages
	}
	objs := b.objects()
	if b.xrefStream {
		return writeCompressed(objs)
	}
	return writeClassic(objs), nil
}

func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	data, err := b.Build()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

const header = "%PDF-1.7\n%\xe2\xe3\xcf\xd3\n"

func writeClassic(objs []object) []byte {
	var buf bytes.Buffer
	buf.WriteString(header)
	offsets := make(map[int]int, len(objs))
	size := 0
	for _, o := range objs {
		offsets[o.num] = buf.Len()
		writeObject(&buf, o)
		if o.num >= size {
			size = o.num + 1
		}
	}
	xrefOff := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", size)
	for i := 1; i < size; i++ {
		if off, ok := offsets[i]; ok {
			fmt.Fprintf(&buf, "%010d 00000 n \n", off)
		} else {
			buf.WriteString("0000000000 65535 f \n")
		}
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /Info 4 0 R >>\nstartxref\n%d\n%%%%EOF\n", size, xrefOff)
	return buf.Bytes()
}

func writeObject(buf *bytes.Buffer, o object) {
	fmt.Fprintf(buf, "%d 0 obj\n", o.num)
	if o.stream != nil {
		fmt.Fprintf(buf, "<< /Length %d >>\nstream\n", len(o.stream))
		buf.Write(o.stream)
		buf.WriteString("\nendstream\nendobj\n")
		return
	}
	buf.WriteString(o.body)
	buf.WriteString("\nendobj\n")
}

func writeCompressed(objs []object) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(header)

	type loc struct {
		kind, a, b int
	}
	locs := make(map[int]loc)
	maxNum := 0
	var packed []object
	for _, o := range objs {
		if o.num > maxNum {
			maxNum = o.num
		}
		if o.inObjStm {
			packed = append(packed, o)
			continue
		}
		locs[o.num] = loc{kind: 1, a: buf.Len()}
		writeObject(&buf, o)
	}

	objStmNum := maxNum + 1
	xrefNum := maxNum + 2
	var head, body bytes.Buffer
	for i, o := range packed {
		fmt.Fprintf(&head, "%d %d ", o.num, body.Len())
		body.WriteString(o.body)
		body.WriteByte('\n')
		locs[o.num] = loc{kind: 2, a: objStmNum, b: i}
	}
	first := head.Len()
	stm, err := deflate(append(head.Bytes(), body.Bytes()...))
	if err != nil {
		return nil, err
	}
	locs[objStmNum] = loc{kind: 1, a: buf.Len()}
	fmt.Fprintf(&buf, "%d 0 obj\n<< /Type /ObjStm /N %d /First %d /Filter /FlateDecode /Length %d >>\nstream\n", objStmNum, len(packed), first, len(stm))
	buf.Write(stm)
	buf.WriteString("\nendstream\nendobj\n")

	xrefOff := buf.Len()
	locs[xrefNum] = loc{kind: 1, a: xrefOff}
	size := xrefNum + 1
	const rowLen = 1 + 4 + 2
	rows := make([]byte, 0, size*rowLen)
	for i := 0; i < size; i++ {
		l, ok := locs[i]
		if !ok {
			rows = append(rows, 0, 0, 0, 0, 0, 0xff, 0xff)
			continue
		}
		rows = append(rows, byte(l.kind),
			byte(l.a>>24), byte(l.a>>16), byte(l.a>>8), byte(l.a),
			byte(l.b>>8), byte(l.b))
	}
	xs, err := deflate(pngUp(rows, rowLen))
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(&buf, "%d 0 obj\n<< /Type /XRef /Size %d /W [1 4 2] /Root 1 0 R /Info 4 0 R /Filter /FlateDecode /DecodeParms << /Predictor 12 /Columns %d >> /Length %d >>\nstream\n",
		xrefNum, size, rowLen, len(xs))
	buf.Write(xs)
	fmt.Fprintf(&buf, "\nendstream\nendobj\nstartxref\n%d\n%%%%EOF\n", xrefOff)
	return buf.Bytes(), nil
}

// pngUp applies the PNG "Up" row filter, as producers do for xref streams.
func pngUp(data []byte, rowLen int) []byte {
	out := make([]byte, 0, len(data)+len(data)/rowLen)
	prev := make([]byte, rowLen)
	for r := 0; r+rowLen <= len(data); r += rowLen {
		row := data[r : r+rowLen]
		out = append(out, 2)
		for i, c := range row {
			out = append(out, c-prev[i])
		}
		prev = row
	}
	return out
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func rect(r coords.Rect) string {
	return fmt.Sprintf("[%s %s %s %s]", num(r.LLX), num(r.LLY), num(r.URX), num(r.URY))
}

func num(f float64) string {
	s := fmt.Sprintf("%.4f", f)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

func literal(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`)
	return "(" + r.Replace(s) + ")"
}
