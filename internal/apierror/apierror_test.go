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

package apierror_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/chronosfinance/ledger/internal/apierror"
	"github.com/stretchr/testify/assert"
)

func TestNewAPIError(t *testing.T) {
	details := "Some internal error details"
	apiErr := apierror.NewAPIError(apierror.ErrInternalServer, "Something went wrong", details)

	assert.Equal(t, apierror.ErrInternalServer, apiErr.Code)
	assert.Equal(t, "Something went wrong", apiErr.Message)
	assert.Equal(t, details, apiErr.Details)
	assert.Equal(t, "INTERNAL_SERVER_ERROR: Something went wrong", apiErr.Error())
}

func TestNewAccountError(t *testing.T) {
	err := apierror.NewAccountError(apierror.ErrInsufficientFunds, "boveda-monte", "insufficient funds")
	assert.Equal(t, "INSUFFICIENT_FUNDS: insufficient funds (account boveda-monte)", err.Error())
	assert.Equal(t, "boveda-monte", err.AccountID)
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("commit: %w", apierror.Wrap(apierror.ErrUnavailable, "store unavailable", cause))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, apierror.ErrUnavailable, apierror.CodeOf(err))
	assert.True(t, apierror.IsRetryable(err))
	assert.True(t, apierror.IsUnknownOutcome(err))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, apierror.ErrorCode(""), apierror.CodeOf(nil))
	assert.Equal(t, apierror.ErrInternalServer, apierror.CodeOf(errors.New("boom")))
	assert.Equal(t, apierror.ErrUnavailable, apierror.CodeOf(context.DeadlineExceeded))
	assert.True(t, apierror.Is(apierror.NewAccountError(apierror.ErrConflict, "a", "b"), apierror.ErrConflict))
	assert.False(t, apierror.IsRetryable(apierror.NewAccountError(apierror.ErrInsufficientFunds, "a", "b")))
	assert.False(t, apierror.IsUnknownOutcome(apierror.NewAccountError(apierror.ErrConflict, "a", "b")))
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"InvalidAmount", apierror.NewAPIError(apierror.ErrInvalidAmount, "amount must be positive", nil), http.StatusBadRequest},
		{"SameAccount", apierror.NewAPIError(apierror.ErrSameAccount, "same account", nil), http.StatusBadRequest},
		{"AccountNotFound", apierror.NewAccountError(apierror.ErrAccountNotFound, "acc_1", "not found"), http.StatusNotFound},
		{"InsufficientFunds", apierror.NewAccountError(apierror.ErrInsufficientFunds, "acc_1", "low"), http.StatusUnprocessableEntity},
		{"AccountDisabled", apierror.NewAccountError(apierror.ErrAccountDisabled, "acc_1", "disabled"), http.StatusUnprocessableEntity},
		{"Conflict", apierror.NewAPIError(apierror.ErrConflict, "Conflict occurred", nil), http.StatusConflict},
		{"DuplicateCorrelation", apierror.NewAPIError(apierror.ErrDuplicateCorrelation, "taken", nil), http.StatusConflict},
		{"Unavailable", apierror.NewAPIError(apierror.ErrUnavailable, "down", nil), http.StatusServiceUnavailable},
		{"InvalidInput", apierror.NewAPIError(apierror.ErrInvalidInput, "Invalid input", nil), http.StatusBadRequest},
		{"NotFound", apierror.NewAPIError(apierror.ErrNotFound, "Resource not found", nil), http.StatusNotFound},
		{"InternalServerError", apierror.NewAPIError(apierror.ErrInternalServer, "Internal server error", nil), http.StatusInternalServerError},
		{"Unknown Error", errors.New("Unknown error"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			statusCode := apierror.MapErrorToHTTPStatus(tt.err)
			assert.Equal(t, tt.expected, statusCode)
		})
	}
}
