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

// Package webhooks delivers post-commit notifications through an asynq queue.
package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chronosfinance/ledger/config"
	redis_db "github.com/chronosfinance/ledger/internal/redis-db"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

const (
	EventAccountCreated      = "account.created"
	EventAccountDisabled     = "account.disabled"
	EventTransferCommitted   = "transfer.committed"
	EventTransferReversed    = "transfer.reversed"
	EventDepositCommitted    = "deposit.committed"
	EventWithdrawalCommitted = "withdrawal.committed"
	EventMovementReversed    = "movement.reversed"
)

// Webhook represents the structure of a webhook notification.
type Webhook struct {
	Event     string      `json:"event"`
	Payload   interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Notifier accepts events for asynchronous delivery.
type Notifier interface {
	Send(ctx context.Context, hook Webhook) error
}

// RedisOpt builds the asynq connection options from the redis section of conf.
func RedisOpt(conf *config.Configuration) (asynq.RedisClientOpt, error) {
	opts, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return asynq.RedisClientOpt{}, fmt.Errorf("error parsing Redis URL: %v", err)
	}
	return asynq.RedisClientOpt{
		Addr:      opts.Addr,
		Username:  opts.Username,
		Password:  opts.Password,
		DB:        opts.DB,
		TLSConfig: opts.TLSConfig,
	}, nil
}

// Queue enqueues webhooks on the configured asynq queue.
type Queue struct {
	client *asynq.Client
	conf   config.WebhookConfig
}

// NewQueue returns a Queue writing through opt.
func NewQueue(opt asynq.RedisConnOpt, conf config.WebhookConfig) *Queue {
	return &Queue{client: asynq.NewClient(opt), conf: conf}
}

// Send enqueues hook. It does nothing when no webhook url is configured.
func (q *Queue) Send(ctx context.Context, hook Webhook) error {
	if q.conf.Url == "" {
		return nil
	}
	if hook.Timestamp.IsZero() {
		hook.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(hook)
	if err != nil {
		return err
	}
	task := asynq.NewTask(q.conf.Queue, payload, asynq.Queue(q.conf.Queue), asynq.MaxRetry(q.conf.MaxRetry))
	info, err := q.client.EnqueueContext(ctx, task)
	if err != nil {
		logrus.Errorf("failed to enqueue webhook %s: %v", hook.Event, err)
		return err
	}
	logrus.Debugf("webhook %s enqueued as %s", hook.Event, info.ID)
	return nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// Deliverer posts queued webhooks to the configured url. It is the asynq handler
// for the webhook queue; a non-2xx answer fails the task so asynq retries it.
type Deliverer struct {
	conf   config.WebhookConfig
	client *http.Client
}

func NewDeliverer(conf config.WebhookConfig, client *http.Client) *Deliverer {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Deliverer{conf: conf, client: client}
}

// ProcessTask processes a webhook notification task from the queue.
func (d *Deliverer) ProcessTask(ctx context.Context, task *asynq.Task) error {
	if d.conf.Url == "" {
		return nil
	}

	var hook Webhook
	if err := json.Unmarshal(task.Payload(), &hook); err != nil {
		logrus.Errorf("error unmarshaling webhook payload: %v", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	logrus.Infof("Processing webhook: %s", hook.Event)
	return d.post(ctx, task.Payload())
}

func (d *Deliverer) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.conf.Url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range d.conf.Headers {
		req.Header.Set(key, value)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			logrus.Error(err)
		}
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook request failed with status code: %d", resp.StatusCode)
	}
	return nil
}
