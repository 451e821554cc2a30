package services

import "errors"

var (
	// ErrAlreadyFinalized is returned for reports against a terminal
	// invocation. Callers treat it as a silent no-op.
	ErrAlreadyFinalized = errors.New("invocation already finalized")

	// ErrInvalidTransition is returned for reports carrying an unknown or
	// inapplicable status code.
	ErrInvalidTransition = errors.New("invalid invocation status transition")

	ErrFrozenEpisode = errors.New("episode is frozen for submissions")

	// ErrMissingActiveSubmission rolls a scrimmage accept back: one of the
	// teams lost its accepted submission between request and accept.
	ErrMissingActiveSubmission = errors.New("team has no active submission")

	ErrNotAllowed = errors.New("operation not allowed for this team")

	ErrValidationFailed = errors.New("validation failed")
)
