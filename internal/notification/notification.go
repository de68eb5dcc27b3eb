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

package notification

import (
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vexogate/vexogate/config"
	"github.com/vexogate/vexogate/internal/request"
)

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

func buildSlackMessage(title string, fields map[string]string, order []string, at time.Time) slackMessage {
	msg := slackMessage{Blocks: []slackBlock{{
		Type: "header",
		Text: &slackText{Type: "plain_text", Text: title, Emoji: true},
	}}}
	for _, name := range order {
		msg.Blocks = append(msg.Blocks, slackBlock{
			Type:   "section",
			Fields: []slackText{{Type: "mrkdwn", Text: fmt.Sprintf("*%s:*\n%s", name, fields[name])}},
		})
	}
	msg.Blocks = append(msg.Blocks, slackBlock{
		Type:   "section",
		Fields: []slackText{{Type: "mrkdwn", Text: fmt.Sprintf("*Time:*\n%s", at.Format(time.RFC822))}},
	})
	return msg
}

// SlackNotification posts msg to webhookURL.
func SlackNotification(webhookURL string, msg slackMessage) error {
	payload, err := request.ToJsonReq(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, webhookURL, payload)
	if err != nil {
		return err
	}

	_, err = request.Call(req, nil)
	return err
}

func notify(log *logrus.Entry, title string, fields map[string]string, order []string) {
	conf, err := config.Fetch()
	if err != nil {
		log.WithError(err).Debug("notification skipped, config not loaded")
		return
	}
	if conf.Notification.Slack.WebhookUrl == "" {
		return
	}

	msg := buildSlackMessage(title, fields, order, time.Now())
	if err := SlackNotification(conf.Notification.Slack.WebhookUrl, msg); err != nil {
		log.WithError(err).Error("failed to send slack notification")
	}
}

// NotifyError logs systemError and forwards it to Slack when configured.
// It never blocks the caller.
func NotifyError(systemError error) {
	go func(systemError error) {
		log := logrus.WithError(systemError)
		log.Error("system error")
		notify(log, "Error From VexoGate 🐞", map[string]string{"Error": systemError.Error()}, []string{"Error"})
	}(systemError)
}

// NotifyManualReview tells operators that an order needs a human decision.
func NotifyManualReview(orderID, reason string) {
	go func() {
		log := logrus.WithFields(logrus.Fields{"order_id": orderID, "reason": reason})
		log.Warn("order escalated to manual review")
		notify(log, "Order Needs Review 🔎", map[string]string{"Order": orderID, "Reason": reason}, []string{"Order", "Reason"})
	}()
}
