package store

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"prontuario/pkg/domain"
)

// GORM models used for persistence. Name fields on users and medications
// hold encrypted values; the store never sees plaintext PII.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Name         string
	CreatedAt    time.Time `gorm:"not null"`
}

type MedicationModel struct {
	ID              string `gorm:"primaryKey"`
	UserID          string `gorm:"not null;index"`
	Name            string `gorm:"not null"`
	Ingredients     string
	FrequencyUnit   string
	FrequencyNumber float64
	DoseQuantity    float64
	Stock           *float64
	Status          string    `gorm:"not null;index"`
	StartDate       time.Time `gorm:"not null"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

type NotificationModel struct {
	ID           string         `gorm:"primaryKey"`
	UserID       string         `gorm:"not null;index"`
	MedicationID string         `gorm:"index"`
	Category     string         `gorm:"not null;index"`
	Title        string         `gorm:"not null"`
	Message      string         `gorm:"not null"`
	Read         bool           `gorm:"not null;index"`
	Metadata     datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time      `gorm:"not null;index"`
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Name:         u.Name,
		CreatedAt:    u.CreatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Name:         m.Name,
		CreatedAt:    m.CreatedAt,
	}
}

func medicationToModel(med domain.Medication) MedicationModel {
	return MedicationModel{
		ID:              med.ID,
		UserID:          med.UserID,
		Name:            med.Name,
		Ingredients:     med.Ingredients,
		FrequencyUnit:   string(med.FrequencyUnit),
		FrequencyNumber: med.FrequencyNumber,
		DoseQuantity:    med.DoseQuantity,
		Stock:           med.Stock,
		Status:          string(med.Status),
		StartDate:       med.StartDate,
		CreatedAt:       med.CreatedAt,
		UpdatedAt:       med.UpdatedAt,
	}
}

func medicationFromModel(m MedicationModel) domain.Medication {
	return domain.Medication{
		ID:              m.ID,
		UserID:          m.UserID,
		Name:            m.Name,
		Ingredients:     m.Ingredients,
		FrequencyUnit:   domain.FrequencyUnit(m.FrequencyUnit),
		FrequencyNumber: m.FrequencyNumber,
		DoseQuantity:    m.DoseQuantity,
		Stock:           m.Stock,
		Status:          domain.MedicationStatus(m.Status),
		StartDate:       m.StartDate,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func notificationToModel(n domain.Notification) (NotificationModel, error) {
	model := NotificationModel{
		ID:           n.ID,
		UserID:       n.UserID,
		MedicationID: n.MedicationID,
		Category:     n.Category,
		Title:        n.Title,
		Message:      n.Message,
		Read:         n.Read,
		CreatedAt:    n.CreatedAt,
	}
	if len(n.Metadata) > 0 {
		raw, err := json.Marshal(n.Metadata)
		if err != nil {
			return model, err
		}
		model.Metadata = datatypes.JSON(raw)
	}
	return model, nil
}

func notificationFromModel(m NotificationModel) domain.Notification {
	n := domain.Notification{
		ID:           m.ID,
		UserID:       m.UserID,
		MedicationID: m.MedicationID,
		Category:     m.Category,
		Title:        m.Title,
		Message:      m.Message,
		Read:         m.Read,
		CreatedAt:    m.CreatedAt,
	}
	if len(m.Metadata) > 0 {
		// Metadata is display-only; a row with unreadable metadata still
		// surfaces as a notification.
		_ = json.Unmarshal(m.Metadata, &n.Metadata)
	}
	return n
}
