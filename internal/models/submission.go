package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Template is the document definition a submission is based on
type Template struct {
	ID         uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID  uint       `gorm:"not null;index" json:"account_id"`
	Name       string     `gorm:"size:255;not null" json:"name"`
	ArchivedAt *time.Time `gorm:"index" json:"archived_at,omitempty"`
	CreatedAt  time.Time  `gorm:"not null" json:"created_at"`
}

// Submission is one document-signing request
type Submission struct {
	ID         uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID  uint       `gorm:"not null;index" json:"account_id"`
	TemplateID uint       `gorm:"not null;index" json:"template_id"`
	ArchivedAt *time.Time `gorm:"index" json:"archived_at,omitempty"`
	CreatedAt  time.Time  `gorm:"not null" json:"created_at"`

	Template   Template          `gorm:"foreignKey:TemplateID" json:"template"`
	Submitters []Submitter       `gorm:"foreignKey:SubmissionID;constraint:OnDelete:CASCADE" json:"submitters,omitempty"`
	Events     []SubmissionEvent `gorm:"foreignKey:SubmissionID;constraint:OnDelete:CASCADE" json:"-"`
}

// Submitter is one recipient of a submission and the unit reminders are sent to
type Submitter struct {
	ID           uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID    uint       `gorm:"not null;index" json:"account_id"`
	SubmissionID uint       `gorm:"not null;index" json:"submission_id"`
	Slug         string     `gorm:"size:64;uniqueIndex" json:"slug"`
	Name         string     `gorm:"size:255" json:"name"`
	Email        string     `gorm:"size:255" json:"email"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	DeclinedAt   *time.Time `json:"declined_at,omitempty"`
	CreatedAt    time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"not null" json:"updated_at"`

	Submission Submission `gorm:"foreignKey:SubmissionID" json:"-"`
	Account    Account    `gorm:"foreignKey:AccountID" json:"-"`
}

// IsPending reports whether the submitter can still receive reminders.
// Submission and Template must be loaded for the archive checks to mean anything.
func (s *Submitter) IsPending() bool {
	switch {
	case s.CompletedAt != nil, s.DeclinedAt != nil:
		return false
	case s.Submission.ArchivedAt != nil, s.Submission.Template.ArchivedAt != nil:
		return false
	case strings.TrimSpace(s.Email) == "", s.SentAt == nil:
		return false
	}
	return true
}

// BeforeCreate hook for submitters
func (s *Submitter) BeforeCreate(tx *gorm.DB) error {
	if s.Slug == "" {
		s.Slug = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = now
	}
	return nil
}

// BeforeCreate hook for submissions
func (s *Submission) BeforeCreate(tx *gorm.DB) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	return nil
}

// BeforeCreate hook for templates
func (t *Template) BeforeCreate(tx *gorm.DB) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	return nil
}

// TableName specifies the table name for the Template model
func (Template) TableName() string {
	return "template"
}

// TableName specifies the table name for the Submission model
func (Submission) TableName() string {
	return "submission"
}

// TableName specifies the table name for the Submitter model
func (Submitter) TableName() string {
	return "submitter"
}
