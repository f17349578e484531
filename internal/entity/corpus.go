package entity

import "time"

// CorpusMode selects how a corpus selection is resolved into document IDs.
type CorpusMode string

const (
	CorpusAll      CorpusMode = "all"
	CorpusRecent   CorpusMode = "recent"
	CorpusExplicit CorpusMode = "explicit"
)

// CorpusSelection describes the documents a regression run replays.
type CorpusSelection struct {
	Mode         CorpusMode `json:"mode"`
	From         *time.Time `json:"from,omitempty"`
	To           *time.Time `json:"to,omitempty"`
	Recent       int        `json:"recent,omitempty"`
	DocumentIDs  []string   `json:"documentIds,omitempty"`
	MaxDocuments int        `json:"maxDocuments,omitempty"`
}
