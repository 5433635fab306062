// Package services defines the business logic for claims and profiles that
// lives outside the claim wizard. This file centralizes common service-level
// error values so that they can be consistently returned by service methods
// and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

// Claim-related errors.
var (
	// ErrClaimNotFound indicates that the requested claim does not exist or
	// is not owned by the current user.
	ErrClaimNotFound = errors.New("claim not found")

	// ErrMissingFields is returned by ClaimService.Create when one of
	// date_of_loss, claim_type or description is blank. Its text is shown to
	// clients verbatim.
	ErrMissingFields = errors.New("date_of_loss, claim_type, description sind Pflichtfelder")

	// ErrInvalidDate is returned when date_of_loss cannot be parsed.
	ErrInvalidDate = errors.New("date_of_loss ist kein gültiges Datum")
)

// Profile-related errors.
var (
	// ErrProfileNotFound indicates that no profile exists for the identity.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrInvalidProfile is returned for profiles without id or email.
	ErrInvalidProfile = errors.New("profile requires id and email")
)
