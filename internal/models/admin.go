// internal/models/admin.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type Setting struct {
	BaseModel
	Key         string     `json:"key" gorm:"uniqueIndex;size:100;not null"`
	Value       JSONB      `json:"value" gorm:"type:jsonb;not null"`
	DataType    string     `json:"data_type" gorm:"size:20;not null"`
	Description string     `json:"description" gorm:"type:text"`
	UpdatedBy   *uuid.UUID `json:"updated_by" gorm:"type:uuid"`
}

type AuditLog struct {
	BaseModel
	UserID       *uuid.UUID `json:"user_id" gorm:"type:uuid;index"`
	Action       string     `json:"action" gorm:"size:100;not null;index"`
	ResourceType string     `json:"resource_type" gorm:"size:50;not null;index"`
	ResourceID   *uuid.UUID `json:"resource_id" gorm:"type:uuid;index"`
	OldValues    JSONB      `json:"old_values" gorm:"type:jsonb"`
	NewValues    JSONB      `json:"new_values" gorm:"type:jsonb"`
	IPAddress    string     `json:"ip_address" gorm:"size:45"`
	UserAgent    string     `json:"user_agent" gorm:"type:text"`

	// Relationships
	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// Notification with a nil UserID is addressed to all staff.
type Notification struct {
	BaseModel
	UserID       *uuid.UUID `json:"user_id" gorm:"type:uuid;index"`
	Type         string     `json:"type" gorm:"type:varchar(50);not null;index"`
	Title        string     `json:"title" gorm:"size:255;not null"`
	Message      string     `json:"message" gorm:"type:text;not null"`
	ResourceType string     `json:"resource_type,omitempty" gorm:"size:50"`
	ResourceID   *uuid.UUID `json:"resource_id" gorm:"type:uuid"`
	ReadAt       *time.Time `json:"read_at"`
}

type Backup struct {
	BaseModel
	Filename     string       `json:"filename" gorm:"size:255;not null"`
	Method       BackupMethod `json:"method" gorm:"type:varchar(20);not null"`
	Status       BackupStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	SizeBytes    int64        `json:"size_bytes"`
	Checksum     string       `json:"checksum" gorm:"size:64"`
	StorageKey   string       `json:"storage_key,omitempty" gorm:"size:255"`
	ErrorMessage string       `json:"error_message,omitempty" gorm:"type:text"`
	CreatedBy    *uuid.UUID   `json:"created_by" gorm:"type:uuid"`
	RestoredAt   *time.Time   `json:"restored_at"`
}
