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

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/custody"
	"github.com/blnkfinance/custody/api/middleware"
	"github.com/blnkfinance/custody/config"
	"github.com/blnkfinance/custody/database"
	"github.com/blnkfinance/custody/internal/request"
	"github.com/blnkfinance/custody/model"
)

var epoch = time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

type nopDispatcher struct{}

func (nopDispatcher) PublishEvent(context.Context, model.EventRecord) error { return nil }

func (nopDispatcher) ScheduleDeadline(context.Context, string, time.Time) error { return nil }

type TestRequest struct {
	Payload  io.Reader
	Router   *gin.Engine
	Response interface{}
	Method   string
	Route    string
	Caller   string
	Header   map[string]string
}

func SetUpTestRequest(s TestRequest) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(s.Method, s.Route, s.Payload)
	for key, value := range s.Header {
		req.Header.Set(key, value)
	}
	if s.Caller != "" {
		req.Header.Set(middleware.CallerHeader, s.Caller)
	}
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	s.Router.ServeHTTP(resp, req)

	if s.Response == nil {
		return resp, nil
	}
	err := json.NewDecoder(resp.Body).Decode(s.Response)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func setupRouter(t *testing.T) (*gin.Engine, *custody.Custody, *clockwork.FakeClock) {
	t.Helper()

	cnf := config.DefaultTestConfig()
	cnf.Workflows.Wager.MinStake = 1
	cnf.Workflows.Tip.MinAmount = 1
	config.MockConfig(cnf)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := clockwork.NewFakeClockAt(epoch)
	c, err := custody.NewCustody(database.NewMemoryStore(),
		custody.WithRedis(client),
		custody.WithClock(clock),
		custody.WithDispatcher(nopDispatcher{}),
	)
	require.NoError(t, err)

	return NewAPI(c).Router(), c, clock
}

// call sends payload as JSON and decodes the reply into response when it is non-nil.
func call(t *testing.T, router *gin.Engine, method, route, caller string, payload, response interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		buf, err := request.ToJsonReq(payload)
		require.NoError(t, err)
		body = buf
	}
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  body,
		Router:   router,
		Response: response,
		Method:   method,
		Route:    route,
		Caller:   caller,
	})
	require.NoError(t, err)
	return resp
}

func initPlatform(t *testing.T, router *gin.Engine) {
	t.Helper()
	fee := uint16(250)
	resp := call(t, router, http.MethodPost, "/platform", "", map[string]interface{}{
		"authority":    "ops",
		"treasury":     "vault",
		"fee_rate_bps": fee,
	}, nil)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
}

func TestPlatformRoutes(t *testing.T) {
	router, _, _ := setupRouter(t)
	initPlatform(t, router)

	var conflict map[string]interface{}
	resp := call(t, router, http.MethodPost, "/platform", "", map[string]string{"authority": "ops", "treasury": "vault"}, &conflict)
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "CONFLICT", conflict["code"])

	var platform map[string]interface{}
	resp = call(t, router, http.MethodGet, "/platform", "", nil, &platform)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "vault", platform["treasury"])
	assert.Equal(t, "2.5", platform["fee_percent"])

	resp = call(t, router, http.MethodPut, "/platform/fee", "", map[string]int{"fee_rate_bps": 100}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	resp = call(t, router, http.MethodPut, "/platform/fee", "mallory", map[string]int{"fee_rate_bps": 100}, nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)
	resp = call(t, router, http.MethodPut, "/platform/fee", "ops", map[string]int{"fee_rate_bps": 900}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	resp = call(t, router, http.MethodPut, "/platform/fee", "ops", map[string]int{"fee_rate_bps": 100}, &platform)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "1", platform["fee_percent"])

	resp = call(t, router, http.MethodGet, "/platform/stats/raffle", "", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestWagerRoutes(t *testing.T) {
	router, _, _ := setupRouter(t)
	initPlatform(t, router)

	var inst model.Instance
	resp := call(t, router, http.MethodPost, "/wagers", "alice", map[string]interface{}{
		"wager_id":  "duel-1",
		"stake":     500_000,
		"game_type": "coin_flip",
	}, &inst)
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, model.StatusOpen, inst.Status)

	resp = call(t, router, http.MethodPost, "/wagers/duel-1/join", "alice", nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)
	resp = call(t, router, http.MethodPost, "/wagers/duel-1/join", "bob", nil, &inst)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, model.StatusActive, inst.Status)

	resp = call(t, router, http.MethodPost, "/wagers/duel-1/complete", "bob", map[string]string{"winner": "bob"}, nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)
	resp = call(t, router, http.MethodPost, "/wagers/duel-1/complete", "ops", map[string]string{"winner": "carol"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	resp = call(t, router, http.MethodPost, "/wagers/duel-1/complete", "ops", map[string]string{"winner": "bob"}, &inst)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, model.StatusCompleted, inst.Status)

	var view map[string]interface{}
	resp = call(t, router, http.MethodGet, "/instances/duel-1", "", nil, &view)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, float64(0), view["custody_balance"])
	assert.Equal(t, "COMPLETED", view["status"])

	var entries []model.LedgerEntry
	resp = call(t, router, http.MethodGet, "/instances/duel-1/entries", "", nil, &entries)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, entries, 4)
	assert.Equal(t, uint64(975_000), entries[3].Amount)

	var records []model.EventRecord
	resp = call(t, router, http.MethodGet, "/instances/duel-1/events", "", nil, &records)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, records, 3)
}

func TestWagerRouteValidation(t *testing.T) {
	router, _, _ := setupRouter(t)
	initPlatform(t, router)

	resp := call(t, router, http.MethodPost, "/wagers", "alice", map[string]interface{}{"stake": 10, "game_type": "poker"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = call(t, router, http.MethodPost, "/wagers", "", map[string]interface{}{"stake": 10, "game_type": "custom"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = call(t, router, http.MethodGet, "/instances/nope", "", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestTipRoute(t *testing.T) {
	router, _, _ := setupRouter(t)
	initPlatform(t, router)
	tip := map[string]interface{}{"recipient": "bob", "amount": 1_000_000, "post_id": "post-1"}

	var inst model.Instance
	resp := call(t, router, http.MethodPost, "/tips", "alice", tip, &inst)
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, model.StatusCompleted, inst.Status)

	resp = call(t, router, http.MethodPost, "/tips", "alice", tip, nil)
	assert.Equal(t, http.StatusConflict, resp.Code)

	resp = call(t, router, http.MethodPost, "/tips", "bob", tip, nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestEventRoutes(t *testing.T) {
	router, _, clock := setupRouter(t)
	initPlatform(t, router)

	var inst model.Instance
	resp := call(t, router, http.MethodPost, "/events", "org", map[string]interface{}{
		"event_id":         "gig-1",
		"name":             "Gig",
		"ticket_price":     1_000,
		"max_tickets":      10,
		"event_date":       epoch.Add(72 * time.Hour).Format(time.RFC3339),
		"public_sale_time": epoch.Add(24 * time.Hour).Format(time.RFC3339),
	}, &inst)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	purchase := map[string]interface{}{"count": 2, "tier": "basic"}
	resp = call(t, router, http.MethodPost, "/events/gig-1/tickets", "fan", purchase, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	clock.Advance(24 * time.Hour)
	resp = call(t, router, http.MethodPost, "/events/gig-1/tickets", "fan", purchase, &inst)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, model.StatusActive, inst.Status)

	var registrations []model.Registration
	resp = call(t, router, http.MethodGet, "/events/gig-1/registrations", "", nil, &registrations)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, registrations, 1)
	assert.Equal(t, uint32(2), registrations[0].TicketCount)

	resp = call(t, router, http.MethodPost, "/events/gig-1/cancel", "fan", nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)
	resp = call(t, router, http.MethodPost, "/events/gig-1/cancel", "org", nil, &inst)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, model.StatusCancelled, inst.Status)
}

func TestSubscriptionRoutes(t *testing.T) {
	router, _, clock := setupRouter(t)
	initPlatform(t, router)

	var inst model.Instance
	resp := call(t, router, http.MethodPost, "/subscriptions", "sam", map[string]string{"payment_type": "monthly"}, &inst)
	require.Equal(t, http.StatusCreated, resp.Code)
	id := inst.InstanceID
	base := fmt.Sprintf("/subscriptions/%s", id)

	resp = call(t, router, http.MethodPost, base+"/payment-requests", "sam", nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	clock.Advance(30 * 24 * time.Hour)
	resp = call(t, router, http.MethodPost, base+"/payment-requests", "sam", nil, &inst)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, model.StatusPaymentRequested, inst.Status)

	var req model.PaymentRequest
	resp = call(t, router, http.MethodGet, base+"/payment-requests/latest", "", nil, &req)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, model.PaymentRequestPending, req.Status)

	resp = call(t, router, http.MethodPost, base+"/approve", "sam", nil, &inst)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, model.StatusActive, inst.Status)

	resp = call(t, router, http.MethodPost, base+"/payment-type", "sam", map[string]string{"payment_type": "yearly"}, &inst)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, model.PaymentYearly, inst.Terms.Subscription.PaymentType)

	resp = call(t, router, http.MethodPost, base+"/check", "", nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}
