/*
Copyright 2024 NetPlay Hub Authors.

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

package hubsync

import (
	"context"
	"encoding/json"
	"log"

	"github.com/hibiken/asynq"

	"github.com/netplayhub/hubsync/config"
	"github.com/netplayhub/hubsync/internal/notification"
	redis_db "github.com/netplayhub/hubsync/internal/redis-db"
)

// Queue carries admin alerts out of the request path. Ticket flagging
// and health transitions enqueue here; a worker delivers to Slack.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
	queueName string
}

// AdminAlertPayload is the task body for an admin notification.
type AdminAlertPayload struct {
	Message  string                `json:"message"`
	Severity notification.Severity `json:"severity"`
}

func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB}
	return &Queue{
		Client:    asynq.NewClient(queueOptions),
		Inspector: asynq.NewInspector(queueOptions),
		queueName: conf.Queue.NotificationQueue,
	}
}

// QueueAdminAlert enqueues an admin notification. Delivery failures
// are logged, never surfaced: an alert must not fail the operation
// that raised it.
func (q *Queue) QueueAdminAlert(message string, severity notification.Severity) {
	if q == nil || q.Client == nil {
		return
	}

	payload, err := json.Marshal(AdminAlertPayload{Message: message, Severity: severity})
	if err != nil {
		log.Printf("Error marshalling admin alert: %v", err)
		return
	}

	task := asynq.NewTask(q.queueName, payload, asynq.Queue(q.queueName))
	if _, err := q.Client.Enqueue(task); err != nil {
		log.Printf("Error enqueuing admin alert: %v", err)
	}
}

// ProcessAdminAlert is the worker handler that delivers a queued admin
// alert to the configured Slack webhook.
func ProcessAdminAlert(_ context.Context, task *asynq.Task) error {
	var payload AdminAlertPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	notification.SlackNotifier{}.Notify(payload.Message, payload.Severity)
	return nil
}
