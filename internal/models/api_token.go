package models

import (
	"time"

	"github.com/google/uuid"
)

type APIToken struct {
	BaseModel
	UserID     uuid.UUID  `json:"userID" gorm:"type:uuid;not null;index"`
	Name       string     `json:"name" gorm:"type:varchar(255);not null"`
	Prefix     string     `json:"prefix" gorm:"type:varchar(12);not null"`
	TokenHash  string     `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
}

func (APIToken) TableName() string {
	return "api_tokens"
}
