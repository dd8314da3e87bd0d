// Package app wires the clinical-records core: the field codec, the
// persistent store, the depletion job, and the thin user-facing
// operations around them.
package app

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"prontuario/internal/depletion"
	"prontuario/internal/fieldcrypt"
	"prontuario/internal/runlock"
	"prontuario/internal/session"
	"prontuario/pkg/domain"
	"prontuario/pkg/store"
)

// ingredientSeparator joins the active ingredients of combination drugs
// inside the encrypted plaintext.
const ingredientSeparator = "+"

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	EncryptionKey string
	Production    bool
	SessionSecret string
	SessionTTL    time.Duration
	Logger        *slog.Logger

	// Test seams; production wiring builds these from the fields above.
	Store  store.Store
	Locker *runlock.Locker
	Now    func() time.Time
}

// App is the core application service.
type App struct {
	store    store.Store
	codec    *fieldcrypt.Codec
	sessions *session.Manager
	job      *depletion.Job
	locker   *runlock.Locker
	logger   *slog.Logger
}

// New constructs the application with storage, encryption, and the
// depletion job. The encryption key is validated here, once, at startup.
func New(cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	codec, err := fieldcrypt.New(cfg.EncryptionKey, cfg.Production)
	if err != nil {
		return nil, err
	}

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	sessions, err := session.NewManager(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("init session manager: %w", err)
	}

	locker := cfg.Locker
	if locker == nil {
		locker = runlock.NewRedisLocker(cfg.RedisAddr, cfg.RedisPassword, "", 0)
	}

	job, err := depletion.New(depletion.Config{
		Store:  dataStore,
		Codec:  codec,
		Logger: logger,
		Now:    cfg.Now,
	})
	if err != nil {
		return nil, err
	}

	return &App{
		store:    dataStore,
		codec:    codec,
		sessions: sessions,
		job:      job,
		locker:   locker,
		logger:   logger,
	}, nil
}

// RunStockDepletion executes one depletion run under the advisory lease.
func (a *App) RunStockDepletion() (depletion.Summary, error) {
	release, ok := a.locker.Acquire()
	if !ok {
		return depletion.Summary{}, ErrRunInProgress
	}
	defer release()
	return a.job.Run()
}

// Login checks credentials and issues a session token.
func (a *App) Login(email, password string) (domain.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return domain.User{}, "", ErrEmailAndPasswordRequired
	}
	user, found, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("look up user: %w", err)
	}
	if !found {
		return domain.User{}, "", ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.Issue(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session token: %w", err)
	}
	user.Name = a.codec.Decrypt(user.Name)
	return user, token, nil
}

// UserFromToken resolves a session token to its user.
func (a *App) UserFromToken(token string) (domain.User, bool) {
	userID, err := a.sessions.Verify(token)
	if err != nil {
		return domain.User{}, false
	}
	user, found, err := a.store.GetUserByID(userID)
	if err != nil || !found {
		return domain.User{}, false
	}
	user.Name = a.codec.Decrypt(user.Name)
	return user, true
}

// MedicationInput carries the plaintext fields of a new medication.
type MedicationInput struct {
	Name            string               `json:"name"`
	Ingredients     []string             `json:"ingredients,omitempty"`
	FrequencyUnit   domain.FrequencyUnit `json:"frequencyUnit,omitempty"`
	FrequencyNumber float64              `json:"frequencyNumber,omitempty"`
	DoseQuantity    float64              `json:"doseQuantity,omitempty"`
	Stock           *float64             `json:"stock,omitempty"`
	StartDate       time.Time            `json:"startDate,omitempty"`
}

// CreateMedication validates input, encrypts the PII fields, and
// persists the medication as active.
func (a *App) CreateMedication(userID string, input MedicationInput) (domain.Medication, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return domain.Medication{}, ErrMedicationNameRequired
	}
	if input.FrequencyUnit != "" && !validFrequencyUnit(input.FrequencyUnit) {
		return domain.Medication{}, ErrInvalidFrequencyUnit
	}
	if input.FrequencyNumber < 0 || input.DoseQuantity < 0 || (input.Stock != nil && *input.Stock < 0) {
		return domain.Medication{}, ErrNegativeQuantity
	}

	encryptedName, err := a.codec.Encrypt(input.Name)
	if err != nil {
		return domain.Medication{}, fmt.Errorf("encrypt name: %w", err)
	}
	encryptedIngredients := ""
	if joined := joinIngredients(input.Ingredients); joined != "" {
		encryptedIngredients, err = a.codec.Encrypt(joined)
		if err != nil {
			return domain.Medication{}, fmt.Errorf("encrypt ingredients: %w", err)
		}
	}

	now := time.Now().UTC()
	startDate := input.StartDate
	if startDate.IsZero() {
		startDate = now
	}
	med := domain.Medication{
		ID:              uuid.NewString(),
		UserID:          userID,
		Name:            encryptedName,
		Ingredients:     encryptedIngredients,
		FrequencyUnit:   input.FrequencyUnit,
		FrequencyNumber: input.FrequencyNumber,
		DoseQuantity:    input.DoseQuantity,
		Stock:           input.Stock,
		Status:          domain.MedicationActive,
		StartDate:       startDate,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := a.store.SaveMedication(med); err != nil {
		return domain.Medication{}, fmt.Errorf("save medication: %w", err)
	}
	return a.decryptMedication(med), nil
}

// ListMedications returns the caller's medications with PII decrypted.
func (a *App) ListMedications(userID string) ([]domain.Medication, error) {
	meds, err := a.store.ListMedicationsByOwner(userID)
	if err != nil {
		return nil, fmt.Errorf("list medications: %w", err)
	}
	res := make([]domain.Medication, 0, len(meds))
	for _, med := range meds {
		res = append(res, a.decryptMedication(med))
	}
	return res, nil
}

// ListNotifications returns the caller's notifications, newest first.
func (a *App) ListNotifications(userID string) ([]domain.Notification, error) {
	notes, err := a.store.ListNotificationsByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notes, nil
}

// MarkNotificationRead acknowledges a notification, which re-arms the
// low-stock gate for its medication.
func (a *App) MarkNotificationRead(userID, notificationID string) error {
	if err := a.store.MarkNotificationRead(notificationID, userID); err != nil {
		return err
	}
	return nil
}

func (a *App) decryptMedication(med domain.Medication) domain.Medication {
	med.Name = a.codec.Decrypt(med.Name)
	med.Ingredients = a.codec.Decrypt(med.Ingredients)
	return med
}

func joinIngredients(ingredients []string) string {
	cleaned := make([]string, 0, len(ingredients))
	for _, ing := range ingredients {
		ing = strings.TrimSpace(ing)
		if ing != "" {
			cleaned = append(cleaned, ing)
		}
	}
	return strings.Join(cleaned, ingredientSeparator)
}

func validFrequencyUnit(unit domain.FrequencyUnit) bool {
	switch unit {
	case domain.FrequencyHour, domain.FrequencyDay, domain.FrequencyWeek, domain.FrequencyMonth:
		return true
	}
	return false
}
