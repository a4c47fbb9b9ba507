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
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// MovementKind classifies a movement.
type MovementKind string

const (
	KindTransferOut MovementKind = "transfer_out"
	KindTransferIn  MovementKind = "transfer_in"
	KindDeposit     MovementKind = "deposit"
	KindWithdrawal  MovementKind = "withdrawal"
	KindOpening     MovementKind = "opening"
)

const (
	DefaultMovementLimit = 50
	MaxMovementLimit     = 500
)

// ErrInvalidCursor is returned when a pagination cursor cannot be decoded.
var ErrInvalidCursor = errors.New("invalid movement cursor")

// Valid reports whether k is a known movement kind.
func (k MovementKind) Valid() bool {
	switch k {
	case KindTransferOut, KindTransferIn, KindDeposit, KindWithdrawal, KindOpening:
		return true
	}
	return false
}

// Movement is one immutable signed entry on one account.
type Movement struct {
	MovementID     string       `json:"movement_id"`
	AccountID      string       `json:"account_id"`
	Kind           MovementKind `json:"kind"`
	Amount         int64        `json:"amount"`
	CounterpartyID string       `json:"counterparty_id,omitempty"`
	Memo           string       `json:"memo"`
	CorrelationKey string       `json:"correlation_key"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Cursor returns the pagination position just after m.
func (m Movement) Cursor() Cursor {
	return Cursor{CreatedAt: m.CreatedAt, MovementID: m.MovementID}
}

// MovementFilter narrows a movement history query.
type MovementFilter struct {
	Kinds  []MovementKind `json:"kinds,omitempty"`
	Cursor string         `json:"cursor,omitempty"`
	Limit  int            `json:"limit,omitempty"`
}

// EffectiveLimit clamps Limit into (0, MaxMovementLimit].
func (f MovementFilter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultMovementLimit
	case f.Limit > MaxMovementLimit:
		return MaxMovementLimit
	}
	return f.Limit
}

// Matches reports whether m passes the kind filter.
func (f MovementFilter) Matches(m Movement) bool {
	if len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if m.Kind == k {
			return true
		}
	}
	return false
}

// Cursor marks a position in the newest-first ordering of an account's movements.
// Movements strictly older than the cursor come after it.
type Cursor struct {
	CreatedAt  time.Time
	MovementID string
}

// Encode returns the opaque string form handed to clients.
func (c Cursor) Encode() string {
	raw := fmt.Sprintf("%d:%s", c.CreatedAt.UnixMicro(), c.MovementID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// After reports whether m sorts after the cursor position.
func (c Cursor) After(m Movement) bool {
	return MovementLess(Movement{CreatedAt: c.CreatedAt, MovementID: c.MovementID}, m)
}

// DecodeCursor parses a string produced by Cursor.Encode.
func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	ts, id, ok := strings.Cut(string(raw), ":")
	if !ok || id == "" {
		return nil, ErrInvalidCursor
	}
	micros, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &Cursor{CreatedAt: time.UnixMicro(micros).UTC(), MovementID: id}, nil
}

// MovementLess orders movements newest first, breaking ties by id descending.
func MovementLess(a, b Movement) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.MovementID > b.MovementID
}

// SortMovements sorts in place, newest first.
func SortMovements(movements []Movement) {
	sort.Slice(movements, func(i, j int) bool {
		return MovementLess(movements[i], movements[j])
	})
}

// Timestamp normalises t to the precision every backend can round-trip.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
