package model

import "errors"

// Error taxonomy. Provider failures are contained where they happen and become
// an absence (missing quote, missing balance); only validation and partial
// execution errors travel back to the calling front end.
var (
	// ErrConfiguration marks an invalid configuration file or missing
	// exchange credentials.
	ErrConfiguration = errors.New("configuration error")

	// ErrProvider marks an exchange API or network failure. The exchange or
	// symbol contributes nothing this cycle.
	ErrProvider = errors.New("provider error")

	// ErrValidation marks bad user input to the trade flow. State unchanged.
	ErrValidation = errors.New("validation error")

	// ErrInsufficientFunds is reported before any order is placed.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrPartialExecution marks a buy leg that filled while the sell leg
	// failed. Not auto-recoverable: manual reconciliation is required.
	ErrPartialExecution = errors.New("partial execution")
)
