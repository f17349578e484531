package ocr

import (
	"bufio"
	"bytes"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/invoice-rules/internal/document"
)

// tesseract TSV levels
const (
	levelPage = 1
	levelWord = 5
)

type lineKey struct {
	page, block, par, line int
}

// TSVResult is a parsed tesseract TSV page set.
type TSVResult struct {
	Text       string
	Layout     *document.Layout
	Confidence float64 // mean word confidence in 0..1, 0 when no word carries one
}

// ParseTSV converts `tesseract ... tsv` output into text and a pixel-unit layout. Words are
// kept in reading order; lines are separated by newlines and blocks by a blank line.
func ParseTSV(data []byte) (TSVResult, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64<<10), 4<<20)

	layout := &document.Layout{Unit: document.UnitPixel}
	pages := map[int]*document.Page{}
	var (
		text      strings.Builder
		prev      *lineKey
		confSum   float64
		confCount int
		header    = true
	)

	for sc.Scan() {
		ln := sc.Text()
		if header {
			header = false
			if strings.HasPrefix(ln, "level") {
				continue
			}
		}
		if ln == "" {
			continue
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		nums := make([]int, 10)
		for i := 0; i < 10; i++ {
			n, err := strconv.Atoi(cols[i])
			if err != nil {
				return TSVResult{}, fmt.Errorf("tsv column %d: %w", i+1, err)
			}
			nums[i] = n
		}
		level, pageNum := nums[0], nums[1]
		box := document.BoundingBox{X: float64(nums[6]), Y: float64(nums[7]), Width: float64(nums[8]), Height: float64(nums[9])}

		switch level {
		case levelPage:
			if p, ok := pages[pageNum]; ok {
				p.Width, p.Height = box.Width, box.Height
			} else {
				pages[pageNum] = &document.Page{Number: pageNum, Width: box.Width, Height: box.Height}
			}
		case levelWord:
			word := strings.TrimSpace(strings.Join(cols[11:], "\t"))
			if word == "" {
				continue
			}
			conf, _ := strconv.ParseFloat(cols[10], 64)
			if conf >= 0 {
				confSum += conf
				confCount++
			}
			p, ok := pages[pageNum]
			if !ok {
				p = &document.Page{Number: pageNum}
				pages[pageNum] = p
			}
			p.Words = append(p.Words, document.Word{Text: word, Box: box})

			key := lineKey{page: pageNum, block: nums[2], par: nums[3], line: nums[4]}
			switch {
			case prev == nil:
			case *prev == key:
				text.WriteByte(' ')
			case prev.page != key.page || prev.block != key.block:
				text.WriteString("\n\n")
			default:
				text.WriteByte('\n')
			}
			text.WriteString(word)
			prev = &key
		}
	}
	if err := sc.Err(); err != nil {
		return TSVResult{}, fmt.Errorf("read tsv: %w", err)
	}

	for _, p := range pages {
		layout.Pages = append(layout.Pages, *p)
	}
	slices.SortFunc(layout.Pages, func(a, b document.Page) int { return a.Number - b.Number })

	res := TSVResult{Text: text.String(), Layout: layout}
	if confCount > 0 {
		res.Confidence = confSum / float64(confCount) / 100
	}
	return res, nil
}
