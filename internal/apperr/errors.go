/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package apperr holds the error taxonomy shared by the booking core and the
// layers that translate it for callers.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrNotFound reports that a referenced slot, booking or user is absent.
	ErrNotFound = errors.New("not found")
	// ErrConflict reports an exclusivity violation, such as a slot that is already claimed.
	ErrConflict = errors.New("conflict")
	// ErrForbidden reports that the actor may not act on the entity.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidState reports a violated temporal or status precondition.
	ErrInvalidState = errors.New("invalid state")
	// ErrDeliveryFailure reports an outbound notification that exhausted its attempts.
	ErrDeliveryFailure = errors.New("delivery failure")
)

// Kind returns the taxonomy sentinel err wraps, or nil.
func Kind(err error) error {
	for _, kind := range []error{ErrNotFound, ErrConflict, ErrForbidden, ErrInvalidState, ErrDeliveryFailure} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// HTTPStatus maps err onto a response status code.
func HTTPStatus(err error) int {
	switch Kind(err) {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict:
		return http.StatusConflict
	case ErrForbidden:
		return http.StatusForbidden
	case ErrInvalidState:
		return http.StatusUnprocessableEntity
	case ErrDeliveryFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Code returns a short machine-readable code for err.
func Code(err error) string {
	switch Kind(err) {
	case ErrNotFound:
		return "not_found"
	case ErrConflict:
		return "conflict"
	case ErrForbidden:
		return "forbidden"
	case ErrInvalidState:
		return "invalid_state"
	case ErrDeliveryFailure:
		return "delivery_failure"
	default:
		return "internal_error"
	}
}
