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

package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chronosfinance/ledger/internal/apierror"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// mapWriteError translates a driver error raised while applying a write set.
func mapWriteError(err error, message string) error {
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

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "unique_violation":
			return uniqueViolation(pqErr.Constraint+" "+pqErr.Message, err)
		case "serialization_failure", "deadlock_detected", "lock_not_available":
			return apierror.Wrap(apierror.ErrConflict, "concurrent update detected", err)
		case "check_violation":
			return apierror.Wrap(apierror.ErrInsufficientFunds, "balance check failed", err)
		case "foreign_key_violation":
			return apierror.Wrap(apierror.ErrAccountNotFound, "movement references an unknown account", err)
		default:
			return apierror.Wrap(apierror.ErrInternalServer, message, err)
		}
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return apierror.Wrap(apierror.ErrConflict, "concurrent update detected", err)
		case sqlite3.ErrConstraint:
			switch liteErr.ExtendedCode {
			case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
				return uniqueViolation(liteErr.Error(), err)
			case sqlite3.ErrConstraintCheck:
				return apierror.Wrap(apierror.ErrInsufficientFunds, "balance check failed", err)
			case sqlite3.ErrConstraintForeignKey:
				return apierror.Wrap(apierror.ErrAccountNotFound, "movement references an unknown account", err)
			}
		}
		return apierror.Wrap(apierror.ErrInternalServer, message, err)
	}

	return apierror.Wrap(apierror.ErrUnavailable, message, err)
}

func uniqueViolation(detail string, err error) error {
	if strings.Contains(detail, "correlation_key") {
		return apierror.Wrap(apierror.ErrDuplicateCorrelation, "correlation key already used for this account", err)
	}
	return apierror.Wrap(apierror.ErrConflict, "record already exists", err)
}

// mapReadError translates a driver error raised by a read helper.
func mapReadError(err error, message string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apierror.Wrap(apierror.ErrUnavailable, "operation deadline exceeded", err)
	}
	return apierror.Wrap(apierror.ErrUnavailable, fmt.Sprintf("%s: store unreachable", message), err)
}
