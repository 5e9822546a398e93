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

package notification

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/netplayhub/hubsync/internal/request"
	"github.com/sirupsen/logrus"

	"github.com/netplayhub/hubsync/config"
)

// Severity of an admin notification. Integration state transitions are
// warnings, migration rollbacks are critical.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Notifier is the narrow admin notification sink exposed by the
// resilience layer. The concrete delivery channel (Slack, chat message)
// is an external concern.
type Notifier interface {
	Notify(message string, severity Severity)
}

// SlackNotifier delivers admin notifications to a Slack webhook.
type SlackNotifier struct{}

func severityHeading(severity Severity) string {
	switch severity {
	case SeverityCritical:
		return "Hubsync Critical Alert 🚨"
	case SeverityWarning:
		return "Hubsync Warning ⚠️"
	default:
		return "Hubsync Notice"
	}
}

// SlackNotification sends a message to the configured Slack webhook.
// It formats the message and the current time into a Slack block payload.
func SlackNotification(message string, severity Severity) {
	data := json.RawMessage(fmt.Sprintf(`{
		"blocks": [
			{
				"type": "header",
				"text": {
					"type": "plain_text",
					"text": "%s",
					"emoji": true
				}
			},
			{
				"type": "section",
				"fields": [
					{
						"type": "mrkdwn",
						"text": "*Message:*\n%v"
					}
				]
			},
			{
				"type": "section",
				"fields": [
					{
						"type": "mrkdwn",
						"text": "*Time:*\n%v"
					}
				]
			}
		]
	}`, severityHeading(severity), message, time.Now().Format(time.RFC822)))

	conf, err := config.Fetch()
	if err != nil {
		log.Println(err)
		return
	}

	payload, err := request.ToJsonReq(&data)
	if err != nil {
		log.Println(err)
		return
	}

	req, err := http.NewRequest("POST", conf.Notification.Slack.WebhookUrl, payload)
	if err != nil {
		log.Println(err)
		return
	}

	var response map[string]interface{}
	_, err = request.Call(req, 10*time.Second, &response)
	if err != nil {
		log.Println(err)
	}
}

// Notify logs the message and, when a Slack webhook is configured,
// delivers it there. Delivery is synchronous; callers that must not
// block enqueue through the notification queue instead.
func (SlackNotifier) Notify(message string, severity Severity) {
	switch severity {
	case SeverityCritical:
		logrus.Error(message)
	case SeverityWarning:
		logrus.Warn(message)
	default:
		logrus.Info(message)
	}

	conf, err := config.Fetch()
	if err != nil {
		log.Println(err)
		return
	}

	if conf.Notification.Slack.WebhookUrl != "" {
		SlackNotification(message, severity)
	}
}

// NotifyError reports a system error through the notification sink
// asynchronously, so error paths never block on Slack.
func NotifyError(systemError error) {
	go func(systemError error) {
		SlackNotifier{}.Notify(systemError.Error(), SeverityCritical)
	}(systemError)
}
