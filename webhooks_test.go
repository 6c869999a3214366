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
	"io"
	"net/http"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/custody/config"
	"github.com/blnkfinance/custody/internal/request"
	"github.com/blnkfinance/custody/model"
)

const testWebhookURL = "https://hooks.example.com/custody"

func mockWebhookConfig(secret string) {
	cnf := config.DefaultTestConfig()
	cnf.Notification.Webhook.Url = testWebhookURL
	cnf.Notification.Webhook.Secret = secret
	cnf.Notification.Webhook.Headers = map[string]string{"X-Tenant": "arena"}
	config.MockConfig(cnf)
}

func eventTask(t *testing.T, event model.EventRecord) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return asynq.NewTask(config.DefaultWebhookQueue, payload)
}

func TestProcessWebhookDelivers(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	mockWebhookConfig("whsec")

	event := model.EventRecord{
		EventID:    "evt_1",
		Operation:  model.OpTipSend,
		InstanceID: "tip_1",
		Kind:       model.KindTip,
		CreatedAt:  testEpoch,
	}

	var received NewWebhook
	httpmock.RegisterResponder(http.MethodPost, testWebhookURL, func(req *http.Request) (*http.Response, error) {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		assert.Equal(t, "arena", req.Header.Get("X-Tenant"))
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
		assert.True(t, request.Verify("whsec", body, req.Header.Get(request.SignatureHeader)))
		if err := json.Unmarshal(body, &received); err != nil {
			return nil, err
		}
		return httpmock.NewStringResponse(http.StatusOK, ""), nil
	})

	require.NoError(t, ProcessWebhook(context.Background(), eventTask(t, event)))
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
	assert.Equal(t, string(model.OpTipSend), received.Event)
	assert.Equal(t, "tip_1", received.Payload.InstanceID)
}

func TestProcessWebhookUnsigned(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	mockWebhookConfig("")

	httpmock.RegisterResponder(http.MethodPost, testWebhookURL, func(req *http.Request) (*http.Response, error) {
		assert.Empty(t, req.Header.Get(request.SignatureHeader))
		return httpmock.NewStringResponse(http.StatusNoContent, ""), nil
	})

	require.NoError(t, ProcessWebhook(context.Background(), eventTask(t, model.EventRecord{EventID: "evt_2", Operation: model.OpWagerJoin})))
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestProcessWebhookReceiverFailure(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	mockWebhookConfig("")

	httpmock.RegisterResponder(http.MethodPost, testWebhookURL, httpmock.NewStringResponder(http.StatusBadGateway, "down"))

	err := ProcessWebhook(context.Background(), eventTask(t, model.EventRecord{EventID: "evt_3"}))
	assert.Error(t, err)
}

func TestProcessWebhookWithoutURL(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	config.MockConfig(config.DefaultTestConfig())

	require.NoError(t, ProcessWebhook(context.Background(), asynq.NewTask(config.DefaultWebhookQueue, []byte("{"))))
	assert.Equal(t, 0, httpmock.GetTotalCallCount())
}

func TestProcessWebhookBadPayload(t *testing.T) {
	mockWebhookConfig("")
	err := ProcessWebhook(context.Background(), asynq.NewTask(config.DefaultWebhookQueue, []byte("{")))
	assert.Error(t, err)
}
