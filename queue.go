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

package custody

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/blnkfinance/custody/config"
	redis_db "github.com/blnkfinance/custody/internal/redis-db"
	"github.com/blnkfinance/custody/model"
)

// Dispatcher hands committed work to background processing.
type Dispatcher interface {
	PublishEvent(ctx context.Context, event model.EventRecord) error
	ScheduleDeadline(ctx context.Context, instanceID string, at time.Time) error
}

// Queue represents a queue for handling various tasks.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
	conf      *config.Configuration
}

// DeadlinePayload is the body of a deadline task.
type DeadlinePayload struct {
	InstanceID string    `json:"instance_id"`
	Deadline   time.Time `json:"deadline"`
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) *Queue {
	queueOptions, err := RedisClientOpt(conf)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}
	return &Queue{
		Client:    asynq.NewClient(queueOptions),
		Inspector: asynq.NewInspector(queueOptions),
		conf:      conf,
	}
}

// RedisClientOpt turns the configured Redis address into asynq connection options.
func RedisClientOpt(conf *config.Configuration) (asynq.RedisClientOpt, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}, nil
}

// PublishEvent enqueues an event record for webhook delivery. It is a no-op when no webhook
// is configured.
func (q *Queue) PublishEvent(ctx context.Context, event model.EventRecord) error {
	ctx, span := tracer.Start(ctx, "Publishing event")
	defer span.End()

	if q.conf.Notification.Webhook.Url == "" {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	taskOptions := []asynq.Option{
		asynq.TaskID(event.EventID),
		asynq.Queue(q.conf.Queue.WebhookQueue),
		asynq.MaxRetry(5),
	}
	task := asynq.NewTask(q.conf.Queue.WebhookQueue, payload, taskOptions...)
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		log.Println(err, info)
		return err
	}
	return nil
}

// ScheduleDeadline enqueues a task that processes the instance at its deadline. One task
// exists per instance and deadline.
func (q *Queue) ScheduleDeadline(ctx context.Context, instanceID string, at time.Time) error {
	payload, err := json.Marshal(DeadlinePayload{InstanceID: instanceID, Deadline: at})
	if err != nil {
		return err
	}
	taskOptions := []asynq.Option{
		asynq.TaskID(deadlineTaskID(instanceID, at)),
		asynq.Queue(q.conf.Queue.DeadlineQueue),
		asynq.ProcessAt(at),
	}
	task := asynq.NewTask(q.conf.Queue.DeadlineQueue, payload, taskOptions...)
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully scheduled deadline of %s at %s", instanceID, at.Format(time.RFC3339))
	return nil
}

func (q *Queue) Close() error {
	if err := q.Inspector.Close(); err != nil {
		return err
	}
	return q.Client.Close()
}

func deadlineTaskID(instanceID string, at time.Time) string {
	return fmt.Sprintf("deadline:%s:%d", instanceID, at.Unix())
}
