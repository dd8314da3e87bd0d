package store

import (
	"sync"
	"time"

	"prontuario/pkg/domain"
)

// MemoryStore keeps records in-process. It backs tests and local runs
// without a database.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]domain.User
	email     map[string]string // email -> user ID
	meds      map[string]domain.Medication
	medOrder  []string
	notes     map[string]domain.Notification
	noteOrder []string
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]domain.User),
		email: make(map[string]string),
		meds:  make(map[string]domain.Medication),
		notes: make(map[string]domain.Notification),
	}
}

// SaveUser creates or updates a user.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[email]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := m.users[id]
	return u, ok, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// SaveMedication creates or updates a medication, tracking insertion order.
func (m *MemoryStore) SaveMedication(med domain.Medication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.meds[med.ID]; !exists {
		m.medOrder = append(m.medOrder, med.ID)
	}
	m.meds[med.ID] = med
	return nil
}

// GetMedication retrieves a medication by ID.
func (m *MemoryStore) GetMedication(id string) (domain.Medication, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	med, ok := m.meds[id]
	return med, ok, nil
}

// ListMedicationsByOwner returns a user's medications in insertion order.
func (m *MemoryStore) ListMedicationsByOwner(userID string) ([]domain.Medication, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Medication, 0, len(m.medOrder))
	for _, id := range m.medOrder {
		if med, ok := m.meds[id]; ok && med.UserID == userID {
			res = append(res, med)
		}
	}
	return res, nil
}

// ListDepletionCandidates returns the eligible-medication snapshot.
func (m *MemoryStore) ListDepletionCandidates(now time.Time) ([]domain.Medication, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Medication, 0, len(m.medOrder))
	for _, id := range m.medOrder {
		med, ok := m.meds[id]
		if !ok {
			continue
		}
		if med.Status != domain.MedicationActive || !med.TracksStock() || med.StartDate.After(now) {
			continue
		}
		res = append(res, med)
	}
	return res, nil
}

// ApplyDepletion writes stock, status, and the updated-at bump.
func (m *MemoryStore) ApplyDepletion(id string, newStock float64, status domain.MedicationStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	med, ok := m.meds[id]
	if !ok {
		return ErrNotFound
	}
	stock := newStock
	med.Stock = &stock
	med.Status = status
	med.UpdatedAt = at
	m.meds[id] = med
	return nil
}

// CreateNotification records a notification.
func (m *MemoryStore) CreateNotification(n domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.notes[n.ID]; !exists {
		m.noteOrder = append(m.noteOrder, n.ID)
	}
	m.notes[n.ID] = n
	return nil
}

// ListNotificationsByUser returns a user's notifications, newest first.
func (m *MemoryStore) ListNotificationsByUser(userID string) ([]domain.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Notification, 0, len(m.noteOrder))
	for i := len(m.noteOrder) - 1; i >= 0; i-- {
		if n, ok := m.notes[m.noteOrder[i]]; ok && n.UserID == userID {
			res = append(res, n)
		}
	}
	return res, nil
}

// HasUnreadNotification reports whether the medication already has an
// unread notification of the given category.
func (m *MemoryStore) HasUnreadNotification(medicationID, category string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, n := range m.notes {
		if n.MedicationID == medicationID && n.Category == category && !n.Read {
			return true, nil
		}
	}
	return false, nil
}

// MarkNotificationRead flips the read flag for one of the user's
// notifications.
func (m *MemoryStore) MarkNotificationRead(id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[id]
	if !ok || n.UserID != userID {
		return ErrNotFound
	}
	n.Read = true
	m.notes[id] = n
	return nil
}
