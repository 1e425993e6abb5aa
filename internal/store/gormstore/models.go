package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UserVariable represents the user_variables table: one points value per ledger, platform and user.
type UserVariable struct {
	VariableID string    `gorm:"type:uuid;primaryKey"`
	LedgerName string    `gorm:"not null;index:idx_user_variables_key,unique,priority:1"`
	Platform   string    `gorm:"not null;index:idx_user_variables_key,unique,priority:2"`
	UserID     string    `gorm:"not null;index:idx_user_variables_key,unique,priority:3"`
	Value      int64     `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (UserVariable) TableName() string { return "user_variables" }

func (variable *UserVariable) BeforeCreate(tx *gorm.DB) error {
	if variable.VariableID == "" {
		variable.VariableID = uuid.NewString()
	}
	return nil
}

// ChatUser mirrors the chat_users table: the login a user was last seen with.
type ChatUser struct {
	Platform   string    `gorm:"primaryKey"`
	UserID     string    `gorm:"primaryKey"`
	UserLogin  string    `gorm:"not null;index:idx_chat_users_login"`
	LastSeenAt time.Time `gorm:"not null"`
}

func (ChatUser) TableName() string { return "chat_users" }

// AuditEntry mirrors the points_audit table.
type AuditEntry struct {
	EntryID    string         `gorm:"type:uuid;primaryKey"`
	Operation  string         `gorm:"not null;index:idx_points_audit_operation"`
	LedgerName string         `gorm:"not null;index:idx_points_audit_user,priority:1"`
	Platform   string         `gorm:"index:idx_points_audit_user,priority:2"`
	UserID     string         `gorm:"index:idx_points_audit_user,priority:3"`
	Actor      string         `gorm:""`
	Amount     int64          `gorm:"not null"`
	OldBalance *int64         `gorm:""`
	NewBalance *int64         `gorm:""`
	Status     string         `gorm:"not null"`
	Metadata   datatypes.JSON `gorm:"not null"`
	CreatedAt  time.Time      `gorm:"not null;index:idx_points_audit_created"`
}

func (AuditEntry) TableName() string { return "points_audit" }

func (entry *AuditEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}

// Models lists every table the store migrates.
func Models() []any {
	return []any{&UserVariable{}, &ChatUser{}, &AuditEntry{}}
}
