// Package events carries domain events between the planner's components and out to
// external consumers.
package events

import (
	"time"

	"github.com/google/uuid"

	"household-missions/internal/completion"
	"household-missions/internal/datekey"
)

// Type names an event. It is also the suffix of the NATS subject.
type Type string

const (
	OccurrenceCompleted Type = "occurrence.completed"
	LevelChanged        Type = "level.changed"
	SuggestionsOffered  Type = "suggestion.offered"
	SuggestionAccepted  Type = "suggestion.accepted"
	SuggestionDeclined  Type = "suggestion.declined"
)

// AllTypes lists every event type, in publication order of a typical day.
var AllTypes = []Type{SuggestionsOffered, SuggestionAccepted, SuggestionDeclined, OccurrenceCompleted, LevelChanged}

// LevelChange is the payload of LevelChanged.
type LevelChange struct {
	From     int `json:"from"`
	To       int `json:"to"`
	TotalExp int `json:"totalExp"`
}

// SuggestionRef is the payload of suggestion events.
type SuggestionRef struct {
	IDs      []string    `json:"ids"`
	Key      string      `json:"key,omitempty"`
	TaskID   uint        `json:"taskId,omitempty"`
	DayOffer datekey.Key `json:"dayOffer"`
}

// Event is a domain event. Exactly one payload field is set, matching Type.
type Event struct {
	ID     string    `json:"id"`
	Type   Type      `json:"type"`
	At     time.Time `json:"at"`
	UserID uint      `json:"userId"`

	Gain       *completion.ExpGain `json:"gain,omitempty"`
	Level      *LevelChange        `json:"level,omitempty"`
	Suggestion *SuggestionRef      `json:"suggestion,omitempty"`
}

func newEvent(t Type, userID uint, at time.Time) Event {
	return Event{ID: uuid.NewString(), Type: t, At: at, UserID: userID}
}

// NewOccurrenceCompleted wraps an EXP gain owed for a completed occurrence.
func NewOccurrenceCompleted(gain completion.ExpGain, at time.Time) Event {
	ev := newEvent(OccurrenceCompleted, gain.UserID, at)
	ev.Gain = &gain
	return ev
}

// NewLevelChanged reports a level transition.
func NewLevelChanged(userID uint, from, to, totalExp int, at time.Time) Event {
	ev := newEvent(LevelChanged, userID, at)
	ev.Level = &LevelChange{From: from, To: to, TotalExp: totalExp}
	return ev
}

// NewSuggestionEvent builds one of the suggestion event types.
func NewSuggestionEvent(t Type, userID uint, ref SuggestionRef, at time.Time) Event {
	ev := newEvent(t, userID, at)
	ev.Suggestion = &ref
	return ev
}
