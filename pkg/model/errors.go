package model

import "errors"

// Pipeline error taxonomy. Per-district errors are recoverable: the
// monitoring loop skips the district for the cycle and continues.
var (
	// ErrInsufficientHistory means too few observations exist to derive
	// features for a district.
	ErrInsufficientHistory = errors.New("insufficient observation history")

	// ErrIncompleteWindow means the derived series has a gap or is shorter
	// than the configured window length. Gaps are never interpolated.
	ErrIncompleteWindow = errors.New("incomplete sequence window")

	// ErrInferenceFailure means the classifier produced an invalid or NaN
	// distribution. Logged loudly: it indicates model or data drift.
	ErrInferenceFailure = errors.New("classifier inference failure")

	// ErrDeliveryFailure means one notification channel failed. Isolated to
	// that channel; the alert itself is still recorded.
	ErrDeliveryFailure = errors.New("notification delivery failure")
)
