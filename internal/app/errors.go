package app

import "errors"

var (
	// ErrInvalidCredentials is returned when the supplied credentials do not match.
	// The message is shown to end users and must not enable account enumeration.
	ErrInvalidCredentials = errors.New("Incorrect email address or password")

	ErrEmailAndPasswordRequired = errors.New("email and password required")

	ErrMedicationNameRequired = errors.New("medication name required")
	ErrInvalidFrequencyUnit   = errors.New("invalid frequency unit")
	ErrNegativeQuantity       = errors.New("quantities must not be negative")

	// ErrRunInProgress signals that another depletion run holds the
	// advisory lease.
	ErrRunInProgress = errors.New("a depletion run is already in progress")
)
