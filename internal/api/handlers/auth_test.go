package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// TestAuthFlow — регистрация, вход, профиль и выход.
func TestAuthFlow(t *testing.T) {
	api := newTestAPI(t, 1024)

	rec := api.do(jsonRequest(http.MethodPost, "/api/auth/register",
		`{"email":"Student@Example.com","password":"secret123"}`), "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: ожидался 201, получен %d: %s", rec.Code, rec.Body.String())
	}
	var registered authResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &registered); err != nil {
		t.Fatal(err)
	}
	if registered.Email != "student@example.com" || registered.Role != "user" || registered.Token == "" {
		t.Errorf("ответ register: %+v", registered)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Error("ответ не должен содержать пароль")
	}

	rec = api.do(jsonRequest(http.MethodPost, "/api/auth/login",
		`{"email":"student@example.com","password":"secret123"}`), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login: ожидался 200, получен %d", rec.Code)
	}
	var loggedIn authResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &loggedIn)

	rec = api.do(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), loggedIn.Token)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: ожидался 200, получен %d", rec.Code)
	}
	var me userResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &me)
	if me.ID != registered.ID {
		t.Errorf("me.id = %s, ожидался %s", me.ID, registered.ID)
	}

	if rec := api.do(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("me без токена: ожидался 401, получен %d", rec.Code)
	}
	if rec := api.do(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil), ""); rec.Code != http.StatusOK {
		t.Errorf("logout: ожидался 200, получен %d", rec.Code)
	}
}

func TestAuth_Errors(t *testing.T) {
	api := newTestAPI(t, 1024)
	rec := api.do(jsonRequest(http.MethodPost, "/api/auth/register",
		`{"email":"taken@example.com","password":"secret123"}`), "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: ожидался 201, получен %d", rec.Code)
	}

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"занятый email", "/api/auth/register", `{"email":"TAKEN@example.com","password":"secret123"}`, http.StatusConflict, "CONFLICT"},
		{"роль admin", "/api/auth/register", `{"email":"boss@example.com","password":"secret123","role":"admin"}`, http.StatusForbidden, "FORBIDDEN"},
		{"короткий пароль", "/api/auth/register", `{"email":"new@example.com","password":"123"}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"неизвестное поле", "/api/auth/register", `{"email":"new@example.com","password":"secret123","admin":true}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"неверный пароль", "/api/auth/login", `{"email":"taken@example.com","password":"wrong-pass"}`, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"неизвестный email", "/api/auth/login", `{"email":"ghost@example.com","password":"secret123"}`, http.StatusUnauthorized, "UNAUTHORIZED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(jsonRequest(http.MethodPost, tt.path, tt.body), "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("ожидался статус %d, получен %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if code := errorCode(t, rec); code != tt.wantCode {
				t.Errorf("code = %s, ожидался %s", code, tt.wantCode)
			}
		})
	}
}
