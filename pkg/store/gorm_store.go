package store

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"prontuario/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&UserModel{}, &MedicationModel{}, &NotificationModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SaveUser creates or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "password_hash", "name"}),
	}).Create(&model).Error
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// SaveMedication creates or updates a medication.
func (s *GormStore) SaveMedication(med domain.Medication) error {
	model := medicationToModel(med)
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "ingredients", "frequency_unit", "frequency_number",
			"dose_quantity", "stock", "status", "start_date", "updated_at",
		}),
	}).Create(&model).Error
}

// GetMedication retrieves a medication by ID.
func (s *GormStore) GetMedication(id string) (domain.Medication, bool, error) {
	var model MedicationModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Medication{}, false, nil
		}
		return domain.Medication{}, false, err
	}
	return medicationFromModel(model), true, nil
}

// ListMedicationsByOwner returns a user's medications ordered by creation.
func (s *GormStore) ListMedicationsByOwner(userID string) ([]domain.Medication, error) {
	var models []MedicationModel
	if err := s.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Medication, 0, len(models))
	for _, m := range models {
		res = append(res, medicationFromModel(m))
	}
	return res, nil
}

// ListDepletionCandidates returns the snapshot of medications eligible
// for automatic stock deduction.
func (s *GormStore) ListDepletionCandidates(now time.Time) ([]domain.Medication, error) {
	var models []MedicationModel
	err := s.db.
		Where("status = ?", string(domain.MedicationActive)).
		Where("stock IS NOT NULL").
		Where("frequency_unit <> ''").
		Where("frequency_number > 0").
		Where("dose_quantity > 0").
		Where("start_date <= ?", now).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	res := make([]domain.Medication, 0, len(models))
	for _, m := range models {
		res = append(res, medicationFromModel(m))
	}
	return res, nil
}

// ApplyDepletion writes stock, status, and updated_at in one statement.
func (s *GormStore) ApplyDepletion(id string, newStock float64, status domain.MedicationStatus, at time.Time) error {
	tx := s.db.Model(&MedicationModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"stock":      newStock,
			"status":     string(status),
			"updated_at": at,
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateNotification records a notification.
func (s *GormStore) CreateNotification(n domain.Notification) error {
	model, err := notificationToModel(n)
	if err != nil {
		return fmt.Errorf("encode notification metadata: %w", err)
	}
	return s.db.Create(&model).Error
}

// ListNotificationsByUser returns a user's notifications, newest first.
func (s *GormStore) ListNotificationsByUser(userID string) ([]domain.Notification, error) {
	var models []NotificationModel
	if err := s.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Notification, 0, len(models))
	for _, m := range models {
		res = append(res, notificationFromModel(m))
	}
	return res, nil
}

// HasUnreadNotification reports whether the medication already has an
// unread notification of the given category.
func (s *GormStore) HasUnreadNotification(medicationID, category string) (bool, error) {
	var count int64
	err := s.db.Model(&NotificationModel{}).
		Where("medication_id = ? AND category = ? AND read = ?", medicationID, category, false).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkNotificationRead flips the read flag for one of the user's
// notifications.
func (s *GormStore) MarkNotificationRead(id, userID string) error {
	tx := s.db.Model(&NotificationModel{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read", true)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
