package models

import "time"

// Device is a config entry: one adapter the user registered through the admin form.
type Device struct {
	ID        uint   `gorm:"primaryKey"`
	EntryID   string `gorm:"uniqueIndex"`
	UniqueID  string `gorm:"uniqueIndex"` // lower-cased host
	Title     string
	Host      string
	Username  string
	Password  string `json:"-"`
	AuthMode  string // "basic" or "digest"
	CreatedAt time.Time
}

// LinkState tracks the coax link of a device across polls.
type LinkState struct {
	ID            uint `gorm:"primaryKey"`
	DeviceID      uint `gorm:"uniqueIndex"`
	Status        string
	StatusChanges int
	UpdatedAt     time.Time
}
