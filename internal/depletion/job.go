// Package depletion implements the periodic medication-stock depletion
// run: advancing each tracked medication's stock by whole elapsed days,
// completing medications that hit zero, and emitting deduplicated
// low-stock notifications.
package depletion

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"prontuario/internal/fieldcrypt"
	"prontuario/pkg/domain"
	"prontuario/pkg/store"
)

// lowStockWindowDays is the upper bound of the notification band:
// a medication with 0 < daysRemaining <= lowStockWindowDays is low.
const lowStockWindowDays = 7

// Summary reports the outcome of one depletion run. A run has no
// pass/fail boolean: individual item failures are tolerated and counted.
type Summary struct {
	Processed     int `json:"processed"`
	Notifications int `json:"notifications"`
	Skipped       int `json:"skipped"`
}

// Config wires the job's collaborators.
type Config struct {
	Store  store.Store
	Codec  *fieldcrypt.Codec
	Logger *slog.Logger
	Now    func() time.Time // defaults to time.Now
}

// Job is the stock depletion batch. It holds no state between runs;
// everything it needs to resume correctly lives in the store.
type Job struct {
	store  store.Store
	codec  *fieldcrypt.Codec
	logger *slog.Logger
	now    func() time.Time
}

// New constructs the job.
func New(cfg Config) (*Job, error) {
	if cfg.Store == nil {
		return nil, errors.New("depletion: store is required")
	}
	if cfg.Codec == nil {
		return nil, errors.New("depletion: field codec is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Job{store: cfg.Store, codec: cfg.Codec, logger: logger, now: now}, nil
}

// Run executes one depletion pass over a snapshot of eligible
// medications. A failing item is logged and counted as skipped; only a
// failing candidate load aborts the run. Runs within the same calendar
// day as the previous one are no-ops per medication, so re-invocations
// are idempotent.
func (j *Job) Run() (Summary, error) {
	now := j.now().UTC()
	candidates, err := j.store.ListDepletionCandidates(now)
	if err != nil {
		return Summary{}, fmt.Errorf("load depletion candidates: %w", err)
	}

	var summary Summary
	for _, med := range candidates {
		updated, notified, err := j.processOne(med, now)
		if err != nil {
			summary.Skipped++
			j.logger.Error("stock depletion item failed",
				"medication_id", med.ID, "user_id", med.UserID, "err", err)
			continue
		}
		if updated {
			summary.Processed++
		}
		if notified {
			summary.Notifications++
		}
	}

	j.logger.Info("stock depletion run complete",
		"candidates", len(candidates),
		"processed", summary.Processed,
		"notifications", summary.Notifications,
		"skipped", summary.Skipped)
	return summary, nil
}

func (j *Job) processOne(med domain.Medication, now time.Time) (updated, notified bool, err error) {
	if med.Stock == nil {
		return false, false, nil
	}
	rate := DailyDoses(med.FrequencyUnit, med.FrequencyNumber, med.DoseQuantity)
	if rate <= 0 {
		return false, false, nil
	}

	// The ledger only advances in whole-day steps; anything less leaves
	// the row untouched, which is what makes same-day re-runs idempotent.
	elapsed := wholeDaysBetween(med.UpdatedAt, now)
	if elapsed < 1 {
		return false, false, nil
	}

	newStock := *med.Stock - rate*float64(elapsed)
	if newStock < 0 {
		newStock = 0
	}
	status := med.Status
	if newStock == 0 {
		status = domain.MedicationCompleted
	}
	if err := j.store.ApplyDepletion(med.ID, newStock, status, now); err != nil {
		return false, false, fmt.Errorf("apply depletion: %w", err)
	}

	notify, err := j.shouldNotify(med.ID, newStock, rate)
	if err != nil {
		return true, false, fmt.Errorf("check unread notifications: %w", err)
	}
	if !notify {
		return true, false, nil
	}
	if err := j.createLowStockNotification(med, newStock, rate, now); err != nil {
		return true, false, fmt.Errorf("create notification: %w", err)
	}
	return true, true, nil
}

// shouldNotify applies the low-stock band and the dedup contract: emit
// only inside the band and only when no unread low-stock notification
// already exists for the medication.
func (j *Job) shouldNotify(medicationID string, newStock, dailyRate float64) (bool, error) {
	daysRemaining := newStock / dailyRate
	if daysRemaining <= 0 || daysRemaining > lowStockWindowDays {
		return false, nil
	}
	exists, err := j.store.HasUnreadNotification(medicationID, domain.NotificationLowStock)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

func (j *Job) createLowStockNotification(med domain.Medication, newStock, dailyRate float64, now time.Time) error {
	name := j.codec.Decrypt(med.Name)
	daysRemaining := newStock / dailyRate
	return j.store.CreateNotification(domain.Notification{
		ID:           uuid.NewString(),
		UserID:       med.UserID,
		MedicationID: med.ID,
		Category:     domain.NotificationLowStock,
		Title:        "Medication running low",
		Message:      fmt.Sprintf("%s has about %.0f day(s) of stock left (%s remaining). Consider refilling the prescription.", name, daysRemaining, trimFloat(newStock)),
		Metadata: map[string]string{
			"stock":          trimFloat(newStock),
			"daily_rate":     trimFloat(dailyRate),
			"days_remaining": trimFloat(daysRemaining),
		},
		CreatedAt: now,
	})
}

// wholeDaysBetween floors the elapsed time to full 24-hour days.
func wholeDaysBetween(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	return int(to.Sub(from).Hours() / 24)
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
