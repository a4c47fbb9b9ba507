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
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/chronosfinance/ledger/model"
	"github.com/sirupsen/logrus"
)

// Retrier applies the caller-side retry policy around a Ledger:
// a correlation key is always sent, CONFLICT is retried from scratch, and an
// UNAVAILABLE outcome is resolved by looking the key up before trying again.
type Retrier struct {
	ledger      *Ledger
	newBackOff  func() backoff.BackOff
	maxAttempts uint64
}

// NewRetrier returns a Retrier with jittered exponential backoff capped at maxAttempts tries.
func NewRetrier(l *Ledger, maxAttempts uint64) *Retrier {
	if maxAttempts == 0 {
		maxAttempts = 5
	}
	return &Retrier{
		ledger:      l,
		maxAttempts: maxAttempts,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 25 * time.Millisecond
			b.MaxInterval = time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// WithBackOff replaces the backoff policy, mostly so tests can use a zero delay.
func (r *Retrier) WithBackOff(fn func() backoff.BackOff) *Retrier {
	r.newBackOff = fn
	return r
}

func (r *Retrier) retry(ctx context.Context, op func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), r.maxAttempts-1), ctx)
	err := backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		logrus.Warnf("retrying ledger operation in %s: %v", wait, err)
	})

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	return err
}

// Transfer runs l.Transfer until it commits, is rejected, or attempts run out.
func (r *Retrier) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if req.CorrelationKey == "" {
		req.CorrelationKey = model.GenerateUUIDWithSuffix("cor")
	}

	var result *TransferResult
	uncertain := false
	err := r.retry(ctx, func() error {
		if uncertain {
			existing, err := r.ledger.existingTransfer(ctx, req)
			if err != nil {
				return err
			}
			if existing != nil {
				result = existing
				return nil
			}
		}

		res, err := r.ledger.Transfer(ctx, req)
		if err != nil {
			uncertain = IsUnknownOutcome(err)
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Deposit runs l.Deposit with the same policy as Transfer.
func (r *Retrier) Deposit(ctx context.Context, req MovementRequest) (*MovementResult, error) {
	return r.movement(ctx, model.KindDeposit, req, r.ledger.Deposit)
}

// Withdraw runs l.Withdraw with the same policy as Transfer.
func (r *Retrier) Withdraw(ctx context.Context, req MovementRequest) (*MovementResult, error) {
	return r.movement(ctx, model.KindWithdrawal, req, r.ledger.Withdraw)
}

func (r *Retrier) movement(ctx context.Context, kind model.MovementKind, req MovementRequest,
	fn func(context.Context, MovementRequest) (*MovementResult, error)) (*MovementResult, error) {
	if req.CorrelationKey == "" {
		req.CorrelationKey = model.GenerateUUIDWithSuffix("cor")
	}

	var result *MovementResult
	uncertain := false
	err := r.retry(ctx, func() error {
		if uncertain {
			existing, err := r.ledger.existingMovement(ctx, kind, req)
			if err != nil {
				return err
			}
			if existing != nil {
				result = existing
				return nil
			}
		}

		res, err := fn(ctx, req)
		if err != nil {
			uncertain = IsUnknownOutcome(err)
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
