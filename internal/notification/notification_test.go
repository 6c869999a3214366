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
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/blnkfinance/custody/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlackPayload(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC)
	msg := slackPayload("Custody", errors.New("custody balance drift"), at)

	require.Len(t, msg.Blocks, 3)
	assert.Equal(t, "Error From Custody", msg.Blocks[0].Text.Text)
	assert.Contains(t, msg.Blocks[1].Fields[0].Text, "custody balance drift")
	assert.Contains(t, msg.Blocks[2].Fields[0].Text, at.Format(time.RFC822))
}

func TestSlackNotification(t *testing.T) {
	received := make(chan slackMessage, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var msg slackMessage
		_ = json.Unmarshal(body, &msg)
		received <- msg
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	err := SlackNotification(context.Background(), server.URL, "Custody", errors.New("boom"))
	assert.NoError(t, err)

	msg := <-received
	assert.Len(t, msg.Blocks, 3)
}

func TestNotifyError_DeliversToSlack(t *testing.T) {
	received := make(chan struct{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- struct{}{}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cnf := config.DefaultTestConfig()
	cnf.Notification.Slack.WebhookUrl = server.URL
	config.MockConfig(cnf)

	NotifyError(errors.New("transfer failure"))

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("slack webhook was not called")
	}
}

func TestNotifyError_WithoutSlack(t *testing.T) {
	config.MockConfig(config.DefaultTestConfig())
	assert.NotPanics(t, func() { NotifyError(errors.New("ignored")) })
}
