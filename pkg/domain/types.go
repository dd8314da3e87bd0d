package domain

import "time"

type MedicationStatus string

const (
	MedicationActive    MedicationStatus = "active"
	MedicationCompleted MedicationStatus = "completed"
	MedicationSuspended MedicationStatus = "suspended"
)

type FrequencyUnit string

const (
	FrequencyHour  FrequencyUnit = "hour"
	FrequencyDay   FrequencyUnit = "day"
	FrequencyWeek  FrequencyUnit = "week"
	FrequencyMonth FrequencyUnit = "month"
)

// NotificationLowStock is the category the depletion job emits under.
// At most one unread notification of this category may exist per medication.
const NotificationLowStock = "low_stock"

// Medication is a prescribed drug instance owned by a user.
// Name and Ingredients hold encrypted values on the way to and from the
// store; handlers decrypt them for display only.
type Medication struct {
	ID              string           `json:"id"`
	UserID          string           `json:"userId"`
	Name            string           `json:"name"`
	Ingredients     string           `json:"ingredients,omitempty"`
	FrequencyUnit   FrequencyUnit    `json:"frequencyUnit,omitempty"`
	FrequencyNumber float64          `json:"frequencyNumber,omitempty"`
	DoseQuantity    float64          `json:"doseQuantity,omitempty"`
	Stock           *float64         `json:"stock,omitempty"`
	Status          MedicationStatus `json:"status"`
	StartDate       time.Time        `json:"startDate"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// TracksStock reports whether the medication carries everything automatic
// depletion needs: a tracked stock level and a complete dosing schedule.
func (m Medication) TracksStock() bool {
	return m.Stock != nil && m.FrequencyUnit != "" && m.FrequencyNumber > 0 && m.DoseQuantity > 0
}

// Notification is a one-shot alert for a user. The depletion job never
// mutates a notification after creating it; only the owning user marks
// it read.
type Notification struct {
	ID           string            `json:"id"`
	UserID       string            `json:"userId"`
	MedicationID string            `json:"medicationId,omitempty"`
	Category     string            `json:"category"`
	Title        string            `json:"title"`
	Message      string            `json:"message"`
	Read         bool              `json:"read"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// User anchors ownership and login. Accounts are provisioned out of band;
// this service exposes no signup surface.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}
