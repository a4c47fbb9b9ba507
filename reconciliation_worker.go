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
	"sync"
	"time"

	redlock "github.com/chronosfinance/ledger/internal/lock"
	"github.com/sirupsen/logrus"
)

// Locker elects a single reconciling instance. *redlock.Locker satisfies it.
type Locker interface {
	Lock(ctx context.Context, ttl time.Duration) error
	Unlock(ctx context.Context) error
}

// ReconciliationWorker runs Reconcile periodically while holding a shared lock,
// so that only one instance reconciles at a time.
type ReconciliationWorker struct {
	ledger   *Ledger
	locker   Locker
	interval time.Duration
	lockTTL  time.Duration
	onReport func(*ReconciliationReport)

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewReconciliationWorker creates a worker.
//
// Parameters:
// - ledger *Ledger: The ledger to reconcile.
// - locker Locker: The lock shared by every instance.
// - interval time.Duration: Time between runs.
// - lockTTL time.Duration: How long a run may hold the lock.
//
// Returns:
// - *ReconciliationWorker: The configured worker.
func NewReconciliationWorker(ledger *Ledger, locker Locker, interval, lockTTL time.Duration) *ReconciliationWorker {
	return &ReconciliationWorker{
		ledger:   ledger,
		locker:   locker,
		interval: interval,
		lockTTL:  lockTTL,
		stopCh:   make(chan struct{}),
	}
}

// OnReport registers a callback invoked after every completed run.
func (w *ReconciliationWorker) OnReport(fn func(*ReconciliationReport)) *ReconciliationWorker {
	w.onReport = fn
	return w
}

// RunOnce reconciles if the lock is free. A nil report with a nil error means
// another instance holds the lock.
func (w *ReconciliationWorker) RunOnce(ctx context.Context) (*ReconciliationReport, error) {
	if err := w.locker.Lock(ctx, w.lockTTL); err != nil {
		if errors.Is(err, redlock.ErrLockHeld) {
			logrus.Debug("reconciliation skipped, lock held by another instance")
			return nil, nil
		}
		return nil, err
	}
	defer func() {
		if err := w.locker.Unlock(context.Background()); err != nil {
			logrus.Errorf("failed to release reconciliation lock: %v", err)
		}
	}()

	report, err := w.ledger.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	if w.onReport != nil {
		w.onReport(report)
	}
	return report, nil
}

// Start runs the worker in the background until ctx ends or Stop is called.
func (w *ReconciliationWorker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Stop signals the worker and waits for an in-flight run to finish.
func (w *ReconciliationWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	w.wg.Wait()
	logrus.Info("Reconciliation worker stopped")
}

func (w *ReconciliationWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				logrus.Errorf("reconciliation run failed: %v", err)
			}
		}
	}
}
