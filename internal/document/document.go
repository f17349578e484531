// Package document describes the OCR output an extraction pattern runs against.
package document

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// BoundingBox is a rectangle in the layout's unit space.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (b BoundingBox) Right() float64  { return b.X + b.Width }
func (b BoundingBox) Bottom() float64 { return b.Y + b.Height }

// Within reports whether b lies fully inside the rectangle (x1,y1)-(x2,y2).
func (b BoundingBox) Within(x1, y1, x2, y2 float64) bool {
	return b.X >= x1 && b.Y >= y1 && b.Right() <= x2 && b.Bottom() <= y2
}

// Intersects reports whether b overlaps the rectangle (x1,y1)-(x2,y2) with positive area.
func (b BoundingBox) Intersects(x1, y1, x2, y2 float64) bool {
	return b.X < x2 && b.Right() > x1 && b.Y < y2 && b.Bottom() > y1
}

// Union returns the smallest box covering b and o.
func (b BoundingBox) Union(o BoundingBox) BoundingBox {
	x, y := min(b.X, o.X), min(b.Y, o.Y)
	return BoundingBox{X: x, Y: y, Width: max(b.Right(), o.Right()) - x, Height: max(b.Bottom(), o.Bottom()) - y}
}

type Word struct {
	Text string      `json:"text"`
	Box  BoundingBox `json:"box"`
}

// Table is a grid recognized by OCR. Rows[0] is the header row when the table has one.
type Table struct {
	Box  BoundingBox `json:"box"`
	Rows [][]string  `json:"rows"`
}

type Page struct {
	Number int     `json:"number"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
	Words  []Word  `json:"words"`
	Tables []Table `json:"tables,omitempty"`
}

// Layout coordinate units.
const (
	UnitPercent = "percent"
	UnitPixel   = "pixel"
)

// Layout is the structured OCR output. Unit is UnitPercent or UnitPixel.
type Layout struct {
	Unit  string `json:"unit"`
	Pages []Page `json:"pages"`
}

// Page returns the page with the given 1-based number; zero selects the first page.
func (l *Layout) Page(number int) (*Page, bool) {
	if l == nil || len(l.Pages) == 0 {
		return nil, false
	}
	if number == 0 {
		return &l.Pages[0], true
	}
	for i := range l.Pages {
		if l.Pages[i].Number == number {
			return &l.Pages[i], true
		}
	}
	return nil, false
}

// View is the read-only document representation: raw OCR text plus optional layout.
type View struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Layout     *Layout   `json:"layout,omitempty"`
	ReceivedAt time.Time `json:"receivedAt,omitzero"`
}

// HasLayout reports whether at least one layout page is present.
func (v *View) HasLayout() bool {
	return v != nil && v.Layout != nil && len(v.Layout.Pages) > 0
}

// Parse decodes a serialized View and fills in missing page numbers.
func Parse(b []byte) (*View, error) {
	var v View
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("parse document view: %w", err)
	}
	if strings.TrimSpace(v.ID) == "" {
		return nil, fmt.Errorf("parse document view: missing id")
	}
	if v.Layout != nil {
		for i := range v.Layout.Pages {
			if v.Layout.Pages[i].Number == 0 {
				v.Layout.Pages[i].Number = i + 1
			}
		}
	}
	return &v, nil
}

// Store is the read-only document/OCR store.
type Store interface {
	Get(ctx context.Context, documentID string) (*View, error)
}
