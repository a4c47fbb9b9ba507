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
	"math"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmountFormat is returned when an amount string cannot be converted to minor units.
var ErrInvalidAmountFormat = errors.New("invalid amount format")

// ParseAmount converts a decimal string such as "100.50" into minor units.
// More fractional digits than precision is an error rather than a silent rounding.
func ParseAmount(s string, precision int32) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidAmountFormat, s)
	}
	if d.Exponent() < -precision && !d.Equal(d.Truncate(precision)) {
		return 0, fmt.Errorf("%w: more than %d decimal places", ErrInvalidAmountFormat, precision)
	}

	scaled := d.Shift(precision)
	if scaled.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || scaled.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return 0, fmt.Errorf("%w: %s out of range", ErrInvalidAmountFormat, s)
	}
	return scaled.IntPart(), nil
}

// FormatAmount renders minor units back into a fixed-point decimal string.
func FormatAmount(minor int64, precision int32) string {
	return decimal.New(minor, -precision).StringFixed(precision)
}
