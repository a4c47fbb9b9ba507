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

package model

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	// ErrInsufficientFunds is returned when an outflow would take a balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrAmountOverflow is returned when a credit would overflow the int64 minor-unit range.
	ErrAmountOverflow = errors.New("amount overflows balance range")
	// ErrAccountDisabled is returned when a movement targets a soft-disabled account.
	ErrAccountDisabled = errors.New("account is disabled")
)

// GenerateUUIDWithSuffix generates a UUID with a given module name as a suffix.
// This is useful for creating unique identifiers with context-specific prefixes.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	return fmt.Sprintf("%s_%s", module, id.String())
}

// GenerateMovementID returns a movement id whose lexical order follows creation time.
func GenerateMovementID() string {
	return fmt.Sprintf("mov_%s", ulid.Make().String())
}
