/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package ledger

import (
	"context"
	"errors"

	"github.com/chronosfinance/ledger/internal/apierror"
)

// Error is the structured failure returned by every ledger operation.
type Error = apierror.APIError

// ErrorCode classifies an Error.
type ErrorCode = apierror.ErrorCode

const (
	ErrInvalidAmount        = apierror.ErrInvalidAmount
	ErrSameAccount          = apierror.ErrSameAccount
	ErrAccountNotFound      = apierror.ErrAccountNotFound
	ErrInsufficientFunds    = apierror.ErrInsufficientFunds
	ErrAccountDisabled      = apierror.ErrAccountDisabled
	ErrConflict             = apierror.ErrConflict
	ErrDuplicateCorrelation = apierror.ErrDuplicateCorrelation
	ErrUnavailable          = apierror.ErrUnavailable
	ErrNotFound             = apierror.ErrNotFound
	ErrInvalidInput         = apierror.ErrInvalidInput
)

// CodeOf returns the code carried by err.
func CodeOf(err error) ErrorCode {
	return apierror.CodeOf(err)
}

// IsRetryable reports whether the failed operation may be repeated from scratch.
func IsRetryable(err error) bool {
	return apierror.IsRetryable(err)
}

// IsUnknownOutcome reports whether the operation may have committed anyway.
// Callers must look the correlation key up before retrying.
func IsUnknownOutcome(err error) bool {
	return apierror.IsUnknownOutcome(err)
}

// storeError makes sure whatever the datasource returned is a coded error.
// Anything unrecognised means the store could not be reached reliably.
func storeError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr apierror.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apierror.Wrap(apierror.ErrUnavailable, "operation deadline exceeded", err)
	}
	return apierror.Wrap(apierror.ErrUnavailable, "store unavailable", err)
}
