// Package corpus resolves a corpus selection into the document IDs a regression run replays.
package corpus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joseph-ayodele/invoice-rules/internal/common"
	"github.com/joseph-ayodele/invoice-rules/internal/entity"
)

// DefaultMaxDocuments caps a selection when neither the caller nor the config sets a limit.
const DefaultMaxDocuments = 500

// Filter is the query the index answers. Newest orders by received time descending,
// otherwise ascending. Limit 0 means no limit.
type Filter struct {
	From   *time.Time
	To     *time.Time
	Newest bool
	Limit  int
}

// Index lists stored document IDs.
type Index interface {
	ListDocumentIDs(ctx context.Context, f Filter) ([]string, error)
}

type Selector struct {
	index        Index
	maxDocuments int
}

// NewSelector returns a selector whose hard cap is maxDocuments (DefaultMaxDocuments when < 1).
func NewSelector(index Index, maxDocuments int) *Selector {
	if maxDocuments < 1 {
		maxDocuments = DefaultMaxDocuments
	}
	return &Selector{index: index, maxDocuments: maxDocuments}
}

// Validate checks a selection without touching the index.
func (s *Selector) Validate(sel entity.CorpusSelection) error {
	v := common.NewValidator().
		Field("corpus.mode", string(sel.Mode), common.Required,
			common.OneOf(string(entity.CorpusAll), string(entity.CorpusRecent), string(entity.CorpusExplicit))).
		Check(sel.MaxDocuments >= 0, "corpus.maxDocuments", sel.MaxDocuments, "must not be negative")

	switch sel.Mode {
	case entity.CorpusAll:
		v.Check(sel.From == nil || sel.To == nil || !sel.To.Before(*sel.From), "corpus.to", sel.To, "must not be before from")
	case entity.CorpusRecent:
		v.Check(sel.Recent >= 1, "corpus.recent", sel.Recent, "must be at least 1")
	case entity.CorpusExplicit:
		v.Check(len(sel.DocumentIDs) > 0, "corpus.documentIds", nil, "must list at least one document")
		for i, id := range sel.DocumentIDs {
			v.Check(strings.TrimSpace(id) != "", fmt.Sprintf("corpus.documentIds[%d]", i), id, "must not be blank")
		}
	}
	if v.HasErrors() {
		return v.Error("INVALID_CORPUS")
	}
	return nil
}

// Resolve returns document IDs in replay order, capped at the effective maximum.
func (s *Selector) Resolve(ctx context.Context, sel entity.CorpusSelection) ([]string, error) {
	if err := s.Validate(sel); err != nil {
		return nil, err
	}
	limit := s.limit(sel)

	switch sel.Mode {
	case entity.CorpusExplicit:
		return dedupe(sel.DocumentIDs, limit), nil
	case entity.CorpusRecent:
		n := min(sel.Recent, limit)
		ids, err := s.index.ListDocumentIDs(ctx, Filter{Newest: true, Limit: n})
		if err != nil {
			return nil, fmt.Errorf("list recent documents: %w", err)
		}
		return ids, nil
	default:
		ids, err := s.index.ListDocumentIDs(ctx, Filter{From: sel.From, To: sel.To, Limit: limit})
		if err != nil {
			return nil, fmt.Errorf("list documents: %w", err)
		}
		return ids, nil
	}
}

func (s *Selector) limit(sel entity.CorpusSelection) int {
	if sel.MaxDocuments > 0 && sel.MaxDocuments < s.maxDocuments {
		return sel.MaxDocuments
	}
	return s.maxDocuments
}

func dedupe(ids []string, limit int) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, min(len(ids), limit))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
		if len(out) == limit {
			break
		}
	}
	return out
}
