package model

import (
	"strings"
	"time"

	"household-missions/internal/datekey"
)

// User stores identity and progression. TotalExp and Level are only written by the
// level trigger; LastOfferDay and LastAcceptedAt only by the suggestion generator.
type User struct {
	ID         uint   `gorm:"primaryKey"`
	TelegramID *int64 `gorm:"uniqueIndex"`
	FirstName  string
	LastName   string
	Username   string

	TotalExp       int                  `gorm:"default:0"`
	Level          int                  `gorm:"default:1"`
	LastOfferDay   datekey.Key          `gorm:"index"`
	LastAcceptedAt map[string]time.Time `gorm:"serializer:json"`
	LastLevelUpAt  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayName is the name shown next to completions.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	switch {
	case name != "":
		return name
	case u.Username != "":
		return u.Username
	default:
		return "user"
	}
}
