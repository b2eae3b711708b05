package model

import (
	"time"

	"household-missions/internal/datekey"
)

// ExpGrant is the ledger row proving that one occurrence already paid out EXP.
type ExpGrant struct {
	ID            uint        `gorm:"primaryKey"`
	TaskID        uint        `gorm:"uniqueIndex:idx_grant_occurrence"`
	OccurrenceKey datekey.Key `gorm:"uniqueIndex:idx_grant_occurrence"`
	UserID        uint        `gorm:"index"`
	Amount        int
	EventID       string
	CreatedAt     time.Time
}
