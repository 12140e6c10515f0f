package model

import (
	"time"

	"github.com/google/uuid"
)

type Player struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username     string    `gorm:"size:255;not null;index"`
	ExternalName string    `gorm:"size:255;not null;index"`
	AvatarURL    *string   `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"not null"`
}

type Room struct {
	ID        uuid.UUID    `gorm:"type:uuid;primaryKey"`
	Code      string       `gorm:"size:16;not null;index"`
	Status    string       `gorm:"size:32;not null"`
	CreatedAt time.Time    `gorm:"not null"`
	Members   []RoomMember `gorm:"constraint:OnDelete:CASCADE"`
}

type RoomMember struct {
	RoomID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	PlayerID  uuid.UUID `gorm:"type:uuid;primaryKey"`
	SessionID string    `gorm:"size:64"`
	JoinedAt  time.Time `gorm:"not null"`
}

type Submission struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey"`
	PlayerID     uuid.UUID  `gorm:"type:uuid;index;not null"`
	VideoURL     string     `gorm:"type:text;not null"`
	ExternalID   *string    `gorm:"size:64;uniqueIndex"`
	PlayCount    int        `gorm:"not null;default:0"`
	LastPlayedAt *time.Time `gorm:"index"`
	CreatedAt    time.Time  `gorm:"not null"`
}

type PlayHistory struct {
	ID           uint      `gorm:"primaryKey"`
	RoomCode     string    `gorm:"size:16;not null"`
	SubmissionID uuid.UUID `gorm:"type:uuid;index;not null"`
	PlayedAt     time.Time `gorm:"not null"`
}

func All() []any {
	return []any{&Player{}, &Room{}, &RoomMember{}, &Submission{}, &PlayHistory{}}
}
