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
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/custody/config"
	"github.com/blnkfinance/custody/internal/request"
	"github.com/blnkfinance/custody/model"
)

// NewWebhook represents the structure of a webhook notification.
type NewWebhook struct {
	Event   string            `json:"event"`
	Payload model.EventRecord `json:"data"`
}

// processHTTP posts data to the configured webhook URL. When a secret is configured the body
// is signed and the signature sent in request.SignatureHeader.
func processHTTP(ctx context.Context, data NewWebhook) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}

	body, err := json.Marshal(data)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, conf.Notification.Webhook.Url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	for key, value := range conf.Notification.Webhook.Headers {
		req.Header.Set(key, value)
	}
	if conf.Notification.Webhook.Secret != "" {
		req.Header.Set(request.SignatureHeader, request.Sign(conf.Notification.Webhook.Secret, body))
	}

	if _, err := request.Call(req, nil); err != nil {
		return err
	}
	logrus.Infof("webhook %s delivered for %s", data.Event, data.Payload.InstanceID)
	return nil
}

// ProcessWebhook delivers one event record taken from the webhook queue.
func ProcessWebhook(ctx context.Context, task *asynq.Task) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	if conf.Notification.Webhook.Url == "" {
		return nil
	}

	var event model.EventRecord
	if err := json.Unmarshal(task.Payload(), &event); err != nil {
		logrus.Errorf("Error unmarshaling task payload: %v", err)
		return err
	}
	return processHTTP(ctx, NewWebhook{Event: string(event.Operation), Payload: event})
}
