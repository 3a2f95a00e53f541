package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"testing"
	"time"

	hzconfig "github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/route"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EstouBem/config"
	"EstouBem/internal/middleware"
	"EstouBem/internal/model/dto"
	"EstouBem/internal/repository"
	"EstouBem/internal/service"
	"EstouBem/pkg/snowflake"
	"EstouBem/pkg/token"
)

var engine *route.Engine

func TestMain(m *testing.M) {
	config.Cfg.EncryptionKey = "0123456789abcdef0123456789abcdef"
	config.Cfg.PhoneHashSalt = "router-test-salt"
	config.Cfg.PhoneRegion = "BR"

	service.UseStore(repository.NewMemoryStore())
	if err := snowflake.Init(1, 1); err != nil {
		panic(err)
	}
	if err := token.InitWith("router-test-secret", "sub", time.Hour); err != nil {
		panic(err)
	}
	if err := middleware.Init(); err != nil {
		panic(err)
	}

	engine = route.NewEngine(hzconfig.NewOptions(nil))
	Register(engine)

	os.Exit(m.Run())
}

func authHeader(t *testing.T, userID string) ut.Header {
	t.Helper()
	tok, err := token.Issue(userID, time.Hour)
	require.NoError(t, err)
	return ut.Header{Key: "Authorization", Value: "Bearer " + tok}
}

func jsonBody(t *testing.T, v interface{}) *ut.Body {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return &ut.Body{Body: bytes.NewReader(raw), Len: len(raw)}
}

var jsonHeader = ut.Header{Key: "Content-Type", Value: "application/json"}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decode(t *testing.T, body []byte) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(body, &env))
	return env
}

func TestHealthzIsPublic(t *testing.T) {
	w := ut.PerformRequest(engine, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Result().StatusCode())
}

func TestV1RequiresToken(t *testing.T) {
	w := ut.PerformRequest(engine, http.MethodGet, "/v1/check-ins/today", nil)
	resp := w.Result()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())
	assert.Equal(t, "UNAUTHORIZED", decode(t, resp.Body()).Error.Code)
}

func TestCompleteTodayOncePerDay(t *testing.T) {
	auth := authHeader(t, "checkin-user")

	w := ut.PerformRequest(engine, http.MethodPost, "/v1/check-ins/today", nil, auth)
	resp := w.Result()
	require.Equal(t, http.StatusCreated, resp.StatusCode())

	var done dto.CompleteCheckInResponse
	require.NoError(t, json.Unmarshal(decode(t, resp.Body()).Data, &done))
	assert.NotEmpty(t, done.ID)
	assert.Equal(t, 48*time.Hour, done.NextAlertAt.Sub(done.CompletedAt))

	w = ut.PerformRequest(engine, http.MethodPost, "/v1/check-ins/today", nil, auth)
	resp = w.Result()
	assert.Equal(t, http.StatusConflict, resp.StatusCode())
	assert.Equal(t, "CHECK_IN_ALREADY_DONE", decode(t, resp.Body()).Error.Code)

	w = ut.PerformRequest(engine, http.MethodGet, "/v1/check-ins/today", nil, auth)
	resp = w.Result()
	require.Equal(t, http.StatusOK, resp.StatusCode())

	var status dto.CheckInStatusData
	require.NoError(t, json.Unmarshal(decode(t, resp.Body()).Data, &status))
	assert.True(t, status.CheckedInToday)
	assert.False(t, status.ContactConfigured)
	assert.False(t, status.Absent)

	w = ut.PerformRequest(engine, http.MethodGet, "/v1/check-ins", nil, auth)
	resp = w.Result()
	require.Equal(t, http.StatusOK, resp.StatusCode())

	var items []dto.CheckInItem
	require.NoError(t, json.Unmarshal(decode(t, resp.Body()).Data, &items))
	require.Len(t, items, 1)
	assert.Equal(t, done.ID, items[0].ID)
}

func TestCheckInHistoryCalendar(t *testing.T) {
	auth := authHeader(t, "history-user")

	w := ut.PerformRequest(engine, http.MethodGet, "/v1/check-ins/history?days=7", nil, auth)
	resp := w.Result()
	require.Equal(t, http.StatusOK, resp.StatusCode())

	var days []dto.CalendarDay
	require.NoError(t, json.Unmarshal(decode(t, resp.Body()).Data, &days))
	assert.Len(t, days, 7)
	for _, d := range days {
		assert.False(t, d.HasCheckIn)
	}
}

func TestListCheckInsRejectsBadSince(t *testing.T) {
	auth := authHeader(t, "since-user")

	w := ut.PerformRequest(engine, http.MethodGet, "/v1/check-ins?since=yesterday", nil, auth)
	resp := w.Result()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
	assert.Equal(t, "INVALID_REQUEST", decode(t, resp.Body()).Error.Code)
}

func TestContactLifecycle(t *testing.T) {
	auth := authHeader(t, "contact-user")

	w := ut.PerformRequest(engine, http.MethodGet, "/v1/contact", nil, auth)
	assert.Equal(t, http.StatusNotFound, w.Result().StatusCode())

	w = ut.PerformRequest(engine, http.MethodPut, "/v1/contact",
		jsonBody(t, dto.UpsertContactRequest{Name: "Ana"}), auth, jsonHeader)
	resp := w.Result()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
	assert.Equal(t, "CONTACT_INVALID", decode(t, resp.Body()).Error.Code)

	w = ut.PerformRequest(engine, http.MethodPut, "/v1/contact",
		jsonBody(t, dto.UpsertContactRequest{Name: "Ana", Phone: "11987654321", Email: "Ana@Example.com"}), auth, jsonHeader)
	resp = w.Result()
	require.Equal(t, http.StatusOK, resp.StatusCode())

	var item dto.ContactItem
	require.NoError(t, json.Unmarshal(decode(t, resp.Body()).Data, &item))
	assert.Equal(t, "Ana", item.Name)
	assert.Equal(t, "ana@example.com", item.Email)
	assert.NotEmpty(t, item.PhoneMasked)
	assert.NotContains(t, item.PhoneMasked, "987654321")

	w = ut.PerformRequest(engine, http.MethodGet, "/v1/check-ins/today", nil, auth)
	resp = w.Result()
	require.Equal(t, http.StatusOK, resp.StatusCode())
	var status dto.CheckInStatusData
	require.NoError(t, json.Unmarshal(decode(t, resp.Body()).Data, &status))
	assert.True(t, status.ContactConfigured)

	w = ut.PerformRequest(engine, http.MethodDelete, "/v1/contact", nil, auth)
	assert.Equal(t, http.StatusNoContent, w.Result().StatusCode())

	w = ut.PerformRequest(engine, http.MethodDelete, "/v1/contact", nil, auth)
	assert.Equal(t, http.StatusNotFound, w.Result().StatusCode())
}

func TestUpdateProfile(t *testing.T) {
	auth := authHeader(t, "profile-user")

	w := ut.PerformRequest(engine, http.MethodPut, "/v1/users/me",
		jsonBody(t, dto.UpdateProfileRequest{DisplayName: "  Maria  "}), auth, jsonHeader)
	resp := w.Result()
	require.Equal(t, http.StatusOK, resp.StatusCode())

	var profile dto.UserProfile
	require.NoError(t, json.Unmarshal(decode(t, resp.Body()).Data, &profile))
	assert.Equal(t, "Maria", profile.DisplayName)
	assert.Equal(t, "profile-user", profile.UserID)

	w = ut.PerformRequest(engine, http.MethodPut, "/v1/users/me",
		jsonBody(t, dto.UpdateProfileRequest{DisplayName: " "}), auth, jsonHeader)
	assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode())
}
