package models

import "time"

// AuthToken is a bearer token issued by login. It stays valid until it is
// removed by logout or by the cleanup sweep.
type AuthToken struct {
	Token      string     `gorm:"primaryKey;size:36" json:"token"`
	CreatedAt  time.Time  `gorm:"precision:3;not null" json:"created_at"`
	LastUsedAt *time.Time `gorm:"precision:3;index" json:"last_used_at"`
}

// TableName pins the table name shared with the SQL migrations.
func (AuthToken) TableName() string { return "auth_tokens" }
