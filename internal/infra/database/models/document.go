package models

import (
	"time"

	"gorm.io/datatypes"
)

// Document is the single table behind every collection. Collection and ID
// together form the primary key, which is what makes composite-key inserts
// collide instead of duplicating.
type Document struct {
	Collection string         `json:"collection" gorm:"primaryKey;type:text"`
	ID         string         `json:"id" gorm:"primaryKey;type:text"`
	Data       datatypes.JSON `json:"data" gorm:"type:jsonb;not null"`
	CreatedAt  time.Time      `json:"createdAt" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp();index"`
	UpdatedAt  time.Time      `json:"updatedAt" gorm:"type:timestamp with time zone;not null;default:clock_timestamp()"`
}

func (Document) TableName() string {
	return "documents"
}
