package depletion

import "prontuario/pkg/domain"

// DailyDoses converts a dosing schedule into units consumed per day.
// frequencyNumber is the number of occurrences per unit ("every 8 hours"
// is unit=hour n=8; "twice a day" is unit=day n=2) and doseQuantity is
// the units taken per occurrence.
//
// Months are a fixed 30-day approximation, not calendar-aware.
// An unrecognized unit yields 0, which callers treat as "no automatic
// depletion" rather than an error.
func DailyDoses(unit domain.FrequencyUnit, frequencyNumber, doseQuantity float64) float64 {
	if frequencyNumber <= 0 || doseQuantity <= 0 {
		return 0
	}
	switch unit {
	case domain.FrequencyHour:
		return (24 / frequencyNumber) * doseQuantity
	case domain.FrequencyDay:
		return frequencyNumber * doseQuantity
	case domain.FrequencyWeek:
		return (frequencyNumber / 7) * doseQuantity
	case domain.FrequencyMonth:
		return (frequencyNumber / 30) * doseQuantity
	default:
		return 0
	}
}
