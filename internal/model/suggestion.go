package model

import (
	"time"

	"household-missions/internal/datekey"
)

// SuggestionStatus is the lifecycle of a daily challenge suggestion.
type SuggestionStatus string

const (
	SuggestionPending  SuggestionStatus = "PENDING"
	SuggestionAccepted SuggestionStatus = "ACCEPTED"
	SuggestionDeclined SuggestionStatus = "DECLINED"
	SuggestionExpired  SuggestionStatus = "EXPIRED"
)

// Suggestion is one optional challenge offered to a user for a day.
type Suggestion struct {
	ID         string           `gorm:"primaryKey" json:"id"`
	UserID     uint             `gorm:"index" json:"userId"`
	Key        string           `gorm:"index" json:"key"`
	Title      string           `json:"title"`
	ExpValue   int              `json:"expValue"`
	Status     SuggestionStatus `gorm:"index" json:"status"`
	DayOffer   datekey.Key      `gorm:"index" json:"dayOffer"`
	TaskID     *uint            `json:"taskId,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
	AcceptedAt *time.Time       `json:"acceptedAt,omitempty"`
	DeclinedAt *time.Time       `json:"declinedAt,omitempty"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}
