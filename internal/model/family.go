package model

import "time"

// Family is a household roster joined by invite code.
type Family struct {
	ID        uint   `gorm:"primaryKey"`
	Code      string `gorm:"uniqueIndex"`
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
	Members   []Membership `gorm:"foreignKey:FamilyID"`
}

// Membership links a user to a family.
type Membership struct {
	ID        uint `gorm:"primaryKey"`
	FamilyID  uint `gorm:"index:idx_family_member,unique"`
	UserID    uint `gorm:"index:idx_family_member,unique;index"`
	CreatedAt time.Time
}
