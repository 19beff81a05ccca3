package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"docremind/internal/models"
	"docremind/internal/secrets"
	"docremind/internal/services"
)

// Store is the GORM-backed implementation of the account, submitter and ledger stores.
type Store struct {
	db     *gorm.DB
	cipher *secrets.Cipher
}

func NewStore(db *gorm.DB, cipher *secrets.Cipher) *Store {
	return &Store{db: db, cipher: cipher}
}

// Ping checks the underlying connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) EachActiveAccount(ctx context.Context, batchSize int, fn func(models.Account) error) error {
	var batch []models.Account
	res := s.db.WithContext(ctx).
		Where("archived_at IS NULL").
		FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
			for _, a := range batch {
				if err := fn(a); err != nil {
					return err
				}
			}
			return nil
		})
	return res.Error
}

func (s *Store) FindAccount(ctx context.Context, id uint) (*models.Account, error) {
	var account models.Account
	if err := s.db.WithContext(ctx).First(&account, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, services.ErrAccountNotFound
		}
		return nil, fmt.Errorf("find account %d: %w", id, err)
	}
	return &account, nil
}

// ReminderSettings returns nil when the account has no reminder configuration.
func (s *Store) ReminderSettings(ctx context.Context, accountID uint) (*models.ReminderSettings, error) {
	var cfg models.AccountConfig
	err := s.db.WithContext(ctx).
		Where(&models.AccountConfig{AccountID: accountID, Key: models.AccountConfigSubmitterReminders}).
		First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load reminder config: %w", err)
	}
	if len(cfg.Value) == 0 {
		return nil, nil
	}

	var settings models.ReminderSettings
	if err := json.Unmarshal(cfg.Value, &settings); err != nil {
		return nil, fmt.Errorf("decode reminder config: %w", err)
	}
	return &settings, nil
}

// PutReminderSettings stores the account's reminder configuration, replacing any previous value.
func (s *Store) PutReminderSettings(ctx context.Context, accountID uint, settings models.ReminderSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	return s.upsertConfig(ctx, &models.AccountConfig{
		AccountID: accountID,
		Key:       models.AccountConfigSubmitterReminders,
		Value:     datatypes.JSON(raw),
	})
}

func (s *Store) upsertConfig(ctx context.Context, cfg *models.AccountConfig) error {
	now := time.Now()
	cfg.CreatedAt, cfg.UpdatedAt = now, now
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(cfg).Error
}

// SMTPSettings returns nil when the account has no SMTP configuration.
func (s *Store) SMTPSettings(ctx context.Context, accountID uint) (*models.SMTPSettings, error) {
	var cfg models.EncryptedConfig
	err := s.db.WithContext(ctx).
		Where(&models.EncryptedConfig{AccountID: accountID, Key: models.EncryptedConfigEmailSMTP}).
		First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load smtp config: %w", err)
	}

	plain, err := s.cipher.Decrypt(cfg.Value)
	if err != nil {
		return nil, fmt.Errorf("decrypt smtp config: %w", err)
	}
	if plain == "" {
		return nil, nil
	}

	var settings models.SMTPSettings
	if err := json.Unmarshal([]byte(plain), &settings); err != nil {
		return nil, fmt.Errorf("decode smtp config: %w", err)
	}
	return &settings, nil
}

// PutSMTPSettings encrypts and stores the account's SMTP settings.
func (s *Store) PutSMTPSettings(ctx context.Context, accountID uint, settings models.SMTPSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	sealed, err := s.cipher.Encrypt(string(raw))
	if err != nil {
		return fmt.Errorf("encrypt smtp config: %w", err)
	}

	now := time.Now()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&models.EncryptedConfig{
		AccountID: accountID,
		Key:       models.EncryptedConfigEmailSMTP,
		Value:     sealed,
		CreatedAt: now,
		UpdatedAt: now,
	}).Error
}

// EachPendingSubmitter scans the account's submitters that can still get reminders.
func (s *Store) EachPendingSubmitter(ctx context.Context, accountID uint, batchSize int, fn func(models.Submitter) error) error {
	var batch []models.Submitter
	res := s.db.WithContext(ctx).
		Model(&models.Submitter{}).
		Joins("JOIN submission ON submission.id = submitter.submission_id").
		Joins("JOIN template ON template.id = submission.template_id").
		Where("submitter.account_id = ?", accountID).
		Where("submitter.completed_at IS NULL AND submitter.declined_at IS NULL").
		Where("submission.archived_at IS NULL AND template.archived_at IS NULL").
		Where("submitter.email IS NOT NULL AND submitter.email <> ''").
		Where("submitter.sent_at IS NOT NULL").
		FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
			for _, sub := range batch {
				if err := fn(sub); err != nil {
					return err
				}
			}
			return nil
		})
	return res.Error
}

func (s *Store) FindSubmitter(ctx context.Context, id uint) (*models.Submitter, error) {
	var sub models.Submitter
	err := s.db.WithContext(ctx).
		Preload("Submission.Template").
		Preload("Account").
		First(&sub, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, services.ErrSubmitterNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find submitter %d: %w", id, err)
	}
	return &sub, nil
}

// CreateTestSubmission creates a sent submission of the account's first active
// template with a single submitter for email.
func (s *Store) CreateTestSubmission(ctx context.Context, accountID uint, email string) (*models.Submitter, error) {
	var tmpl models.Template
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND archived_at IS NULL", accountID).
		Order("id").
		First(&tmpl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, services.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find template: %w", err)
	}

	now := time.Now()
	submission := models.Submission{
		AccountID:  accountID,
		TemplateID: tmpl.ID,
	}
	submitter := models.Submitter{
		AccountID: accountID,
		Email:     email,
		SentAt:    &now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&submission).Error; err != nil {
			return err
		}
		submitter.SubmissionID = submission.ID
		return tx.Omit(clause.Associations).Create(&submitter).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create test submission: %w", err)
	}

	submission.Template = tmpl
	submitter.Submission = submission
	return &submitter, nil
}

// DeleteSubmission removes a submission with its events and submitters.
func (s *Store) DeleteSubmission(ctx context.Context, submissionID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("submission_id = ?", submissionID).Delete(&models.SubmissionEvent{}).Error; err != nil {
			return fmt.Errorf("delete submission events: %w", err)
		}
		if err := tx.Where("submission_id = ?", submissionID).Delete(&models.Submitter{}).Error; err != nil {
			return fmt.Errorf("delete submitters: %w", err)
		}
		if err := tx.Delete(&models.Submission{}, submissionID).Error; err != nil {
			return fmt.Errorf("delete submission: %w", err)
		}
		return nil
	})
}

func (s *Store) SentReminderNumbers(ctx context.Context, submitterID uint) ([]int, error) {
	var numbers []int
	err := s.db.WithContext(ctx).
		Model(&models.SubmissionEvent{}).
		Where("submitter_id = ? AND event_type = ? AND reminder_number IS NOT NULL", submitterID, models.EventSendReminderEmail).
		Order("reminder_number").
		Pluck("reminder_number", &numbers).Error
	if err != nil {
		return nil, fmt.Errorf("load sent reminders: %w", err)
	}
	return numbers, nil
}

// AppendReminderEvent records a delivered reminder. The unique index on
// (submitter_id, event_type, reminder_number) turns a duplicate into a no-op.
func (s *Store) AppendReminderEvent(ctx context.Context, submitter *models.Submitter, number int, at time.Time) (bool, error) {
	data, err := json.Marshal(map[string]any{
		"email":           submitter.Email,
		"reminder_number": number,
	})
	if err != nil {
		return false, err
	}

	event := models.SubmissionEvent{
		SubmissionID:   submitter.SubmissionID,
		SubmitterID:    submitter.ID,
		EventType:      models.EventSendReminderEmail,
		ReminderNumber: &number,
		Data:           datatypes.JSON(data),
		EventTimestamp: at,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&event)
	if res.Error != nil {
		return false, fmt.Errorf("append reminder event: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

var (
	_ services.AccountStore   = (*Store)(nil)
	_ services.SubmitterStore = (*Store)(nil)
	_ services.Ledger         = (*Store)(nil)
)
