package controller

import "github.com/gmaxsoft/elasticsearch-project/internal/domain"

// SuggestionState is the visibility state of the suggestion list.
type SuggestionState int

const (
	SuggestionIdle SuggestionState = iota
	SuggestionPending
	SuggestionShown
	SuggestionHidden
)

func (s SuggestionState) String() string {
	switch s {
	case SuggestionIdle:
		return "idle"
	case SuggestionPending:
		return "pending"
	case SuggestionShown:
		return "shown"
	case SuggestionHidden:
		return "hidden"
	default:
		return "unknown"
	}
}

// SearchState is the lifecycle state of the current search.
type SearchState int

const (
	SearchIdle SearchState = iota
	SearchPending
	SearchDone
	SearchFailed
)

func (s SearchState) String() string {
	switch s {
	case SearchIdle:
		return "idle"
	case SearchPending:
		return "pending"
	case SearchDone:
		return "done"
	case SearchFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is a snapshot of what the client displays.
type State struct {
	QueryText       string
	SuggestionState SuggestionState
	Suggestions     []string
	SearchState     SearchState
	Results         []domain.Product
	Error           string
	SearchEnabled   bool
	// Version increases with every published change.
	Version uint64
}

func (s State) clone() State {
	out := s
	if s.Suggestions != nil {
		out.Suggestions = append([]string(nil), s.Suggestions...)
	}
	if s.Results != nil {
		out.Results = append([]domain.Product(nil), s.Results...)
	}
	return out
}
