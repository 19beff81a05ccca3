package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Account configuration keys
const (
	AccountConfigSubmitterReminders = "submitter_reminders"
	EncryptedConfigEmailSMTP        = "action_mailer_smtp"
)

// Account is a tenant owning templates, submissions and reminder configuration
type Account struct {
	ID         uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Name       string     `gorm:"size:255;not null" json:"name"`
	ArchivedAt *time.Time `gorm:"index" json:"archived_at,omitempty"`
	CreatedAt  time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"not null" json:"updated_at"`

	Configs []AccountConfig `gorm:"foreignKey:AccountID" json:"-"`
}

// IsActive reports whether the account still takes part in scheduling
func (a *Account) IsActive() bool {
	return a.ArchivedAt == nil
}

// BeforeCreate hook is called before creating a new account
func (a *Account) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = now
	}
	return nil
}

// AccountConfig is an account-scoped key/value setting stored as JSON
type AccountConfig struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID uint           `gorm:"not null;uniqueIndex:idx_account_config_key" json:"account_id"`
	Key       string         `gorm:"size:100;not null;uniqueIndex:idx_account_config_key" json:"key"`
	Value     datatypes.JSON `gorm:"type:jsonb" json:"value"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

// EncryptedConfig is an account-scoped setting whose value is encrypted at rest
type EncryptedConfig struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID uint      `gorm:"not null;uniqueIndex:idx_encrypted_config_key" json:"account_id"`
	Key       string    `gorm:"size:100;not null;uniqueIndex:idx_encrypted_config_key" json:"key"`
	Value     string    `gorm:"type:text" json:"-"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`

	Account Account `gorm:"foreignKey:AccountID" json:"-"`
}

// TableName specifies the table name for the Account model
func (Account) TableName() string {
	return "account"
}

// TableName specifies the table name for the AccountConfig model
func (AccountConfig) TableName() string {
	return "account_config"
}

// TableName specifies the table name for the EncryptedConfig model
func (EncryptedConfig) TableName() string {
	return "encrypted_config"
}
