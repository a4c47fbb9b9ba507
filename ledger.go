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

	"github.com/chronosfinance/ledger/cache"
	"github.com/chronosfinance/ledger/config"
	"github.com/chronosfinance/ledger/database"
	"github.com/chronosfinance/ledger/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("ledger")

const (
	defaultOperationTimeout = 10 * time.Second
	defaultTotalBalanceTTL  = 5 * time.Second
)

// Ledger is the only writer of accounts and movements. Every mutation reads a
// snapshot, validates it, and commits one write set through the datasource.
// It performs no retries and never notifies anyone; both belong to callers.
type Ledger struct {
	datasource database.IDataSource
	cache      cache.Cache
	now        func() time.Time
	timeout    time.Duration
	totalTTL   time.Duration
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithCache serves GetTotalBalance from c for ttl.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(l *Ledger) {
		l.cache = c
		if ttl > 0 {
			l.totalTTL = ttl
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithOperationTimeout bounds each operation. Non-positive values are ignored.
func WithOperationTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// NewLedger returns a ledger writing through db.
func NewLedger(db database.IDataSource, opts ...Option) (*Ledger, error) {
	if db == nil {
		return nil, errors.New("ledger: datasource is required")
	}
	l := &Ledger{
		datasource: db,
		now:        time.Now,
		timeout:    defaultOperationTimeout,
		totalTTL:   defaultTotalBalanceTTL,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// NewLedgerFromConfig applies the ledger section of cfg.
func NewLedgerFromConfig(db database.IDataSource, cfg *config.Configuration, c cache.Cache) (*Ledger, error) {
	opts := []Option{WithOperationTimeout(cfg.Ledger.OperationTimeout())}
	if c != nil {
		opts = append(opts, WithCache(c, cfg.Ledger.TotalBalanceCacheTTL()))
	}
	return NewLedger(db, opts...)
}

// Datasource exposes the underlying store for read-only adapters.
func (l *Ledger) Datasource() database.IDataSource {
	return l.datasource
}

func (l *Ledger) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, l.timeout)
}

func (l *Ledger) timestamp() time.Time {
	return model.Timestamp(l.now())
}

func logAndRecordError(span trace.Span, msg string, err error) error {
	span.RecordError(err)
	logrus.Errorf("%s: %v", msg, err)
	return err
}
