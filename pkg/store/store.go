package store

import (
	"errors"
	"time"

	"prontuario/pkg/domain"
)

// ErrNotFound is returned by targeted updates whose row does not exist.
var ErrNotFound = errors.New("store: record not found")

// Store defines persistence operations for users, medications, and
// notifications.
type Store interface {
	// users
	SaveUser(domain.User) error
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)

	// medications
	SaveMedication(domain.Medication) error
	GetMedication(id string) (domain.Medication, bool, error)
	ListMedicationsByOwner(userID string) ([]domain.Medication, error)

	// ListDepletionCandidates returns active medications with tracked
	// stock, a complete dosing schedule, and a start date at or before
	// now. The result is a snapshot: rows created afterwards are not
	// seen by the caller.
	ListDepletionCandidates(now time.Time) ([]domain.Medication, error)

	// ApplyDepletion persists a depletion step for one medication as a
	// single write: new stock level, possibly-changed status, and the
	// updated-at bump that anchors the next elapsed-day computation.
	ApplyDepletion(id string, newStock float64, status domain.MedicationStatus, at time.Time) error

	// notifications
	CreateNotification(domain.Notification) error
	ListNotificationsByUser(userID string) ([]domain.Notification, error)
	HasUnreadNotification(medicationID, category string) (bool, error)
	MarkNotificationRead(id, userID string) error
}
