package parser

import (
	"context"
	"fmt"

	"github.com/wudi/pdfcapture/coords"
	"github.com/wudi/pdfcapture/ir/raw"
	"github.com/wudi/pdfcapture/recovery"
	"github.com/wudi/pdfcapture/security"
)

type inheritedPageProps struct {
	MediaBox *coords.Rect
	CropBox  *coords.Rect
	Rotate   *int
}

// defaultMediaBox is used when neither a page nor its ancestors carry one.
var defaultMediaBox = coords.Rect{URX: 612, URY: 792}

func (d *Document) readPages(ctx context.Context) error {
	root, err := d.resolve(d.xref.Trailer["Root"])
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	catalog, ok := root.(raw.Dict)
	if !ok {
		return fmt.Errorf("catalog is not a dictionary")
	}
	visited := make(map[int]bool)
	if err := d.walkPages(ctx, catalog["Pages"], inheritedPageProps{}, 0, visited); err != nil {
		return err
	}
	if len(d.Pages) == 0 {
		return ErrNoPages
	}
	return nil
}

// walkPages traverses the page tree and appends leaf pages in order.
func (d *Document) walkPages(ctx context.Context, obj raw.Object, inherited inheritedPageProps, depth int, visited map[int]bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth > d.cfg.Limits.MaxPageTreeDepth {
		return fmt.Errorf("page tree depth: %w", security.ErrLimitExceeded)
	}
	if ref, ok := obj.(raw.Ref); ok {
		if visited[ref.Num] {
			return fmt.Errorf("%w in page tree at object %d", ErrCycle, ref.Num)
		}
		visited[ref.Num] = true
	}
	resolved, err := d.resolve(obj)
	if err != nil {
		return err
	}
	dict, ok := resolved.(raw.Dict)
	if !ok {
		return fmt.Errorf("page tree node is %s, not a dictionary", resolved.Type())
	}

	props := inherited
	if mb, ok := d.rect(dict["MediaBox"]); ok {
		props.MediaBox = &mb
	}
	if cb, ok := d.rect(dict["CropBox"]); ok {
		props.CropBox = &cb
	}
	if rot, err := d.resolve(dict["Rotate"]); err == nil {
		if n, ok := rot.(raw.Number); ok {
			r := int(n.Int())
			props.Rotate = &r
		}
	}

	typ, _ := dict.Name("Type")
	kids, hasKids := dict["Kids"]
	if typ == "Page" || (typ != "Pages" && !hasKids) {
		if len(d.Pages) >= d.cfg.Limits.MaxPages {
			return fmt.Errorf("page count: %w", security.ErrLimitExceeded)
		}
		d.Pages = append(d.Pages, newPage(len(d.Pages)+1, props))
		return nil
	}

	arrObj, err := d.resolve(kids)
	if err != nil {
		return err
	}
	arr, ok := arrObj.(raw.Array)
	if !ok {
		return fmt.Errorf("page tree node without /Kids array")
	}
	for _, kid := range arr {
		if err := d.walkPages(ctx, kid, props, depth+1, visited); err != nil {
			if ctx.Err() != nil {
				return err
			}
			action := d.cfg.Recovery.OnError(ctx, err, recovery.Location{Component: "pagetree", ObjectNum: refNum(kid)})
			if action == recovery.ActionFail {
				return err
			}
		}
	}
	return nil
}

func newPage(number int, props inheritedPageProps) Page {
	p := Page{Number: number, MediaBox: defaultMediaBox}
	if props.MediaBox != nil {
		p.MediaBox = *props.MediaBox
	}
	p.CropBox = p.MediaBox
	if props.CropBox != nil {
		p.CropBox = *props.CropBox
	}
	if props.Rotate != nil {
		p.Rotate = coords.NormalizeRotation(*props.Rotate)
	}
	return p
}

func (d *Document) rect(obj raw.Object) (coords.Rect, bool) {
	if obj == nil {
		return coords.Rect{}, false
	}
	resolved, err := d.resolve(obj)
	if err != nil {
		return coords.Rect{}, false
	}
	arr, ok := resolved.(raw.Array)
	if !ok || len(arr) != 4 {
		return coords.Rect{}, false
	}
	var v [4]float64
	for i, item := range arr {
		item, err = d.resolve(item)
		if err != nil {
			return coords.Rect{}, false
		}
		f, ok := raw.Float(item)
		if !ok {
			return coords.Rect{}, false
		}
		v[i] = f
	}
	r := coords.Rect{LLX: v[0], LLY: v[1], URX: v[2], URY: v[3]}.Normalize()
	if r.Empty() {
		return coords.Rect{}, false
	}
	return r, true
}

func refNum(o raw.Object) int {
	if r, ok := o.(raw.Ref); ok {
		return r.Num
	}
	return 0
}
