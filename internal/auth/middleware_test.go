package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// echoUser writes the user id from the context, or "anonymous".
var echoUser = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	id, ok := UserIDFromContext(r.Context())
	if !ok {
		id = "anonymous"
	}
	_, _ = w.Write([]byte(id))
})

func requestWithToken(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	}
	return req
}

// =========================================================================
// RequireAuth / OptionalAuth
// =========================================================================

func TestRequireAuth(t *testing.T) {
	ts := newTestTokenService(t)
	good, _ := ts.Generate("user-1")

	tests := []struct {
		name     string
		token    string
		wantCode int
		wantBody string
	}{
		{"valid token", good, http.StatusOK, "user-1"},
		{"no cookie", "", http.StatusUnauthorized, ""},
		{"bad token", "garbage", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RequireAuth(ts)(echoUser).ServeHTTP(rec, requestWithToken(tt.token))

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	ts := newTestTokenService(t)
	good, _ := ts.Generate("user-1")

	rec := httptest.NewRecorder()
	OptionalAuth(ts)(echoUser).ServeHTTP(rec, requestWithToken(good))
	if rec.Body.String() != "user-1" {
		t.Errorf("with token: body = %q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	OptionalAuth(ts)(echoUser).ServeHTTP(rec, requestWithToken("garbage"))
	if rec.Code != http.StatusOK || rec.Body.String() != "anonymous" {
		t.Errorf("bad token: status %d body %q", rec.Code, rec.Body.String())
	}
}

// =========================================================================
// RequireAdmin
// =========================================================================

func TestRequireAdmin(t *testing.T) {
	check := func(_ context.Context, userID string) (bool, error) {
		switch userID {
		case "admin":
			return true, nil
		case "broken":
			return false, errors.New("db down")
		}
		return false, nil
	}

	tests := []struct {
		userID   string
		wantCode int
	}{
		{"admin", http.StatusOK},
		{"cook", http.StatusForbidden},
		{"broken", http.StatusForbidden},
		{"", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/api/methods", nil)
		if tt.userID != "" {
			req = req.WithContext(WithUserID(req.Context(), tt.userID))
		}
		rec := httptest.NewRecorder()
		RequireAdmin(check)(echoUser).ServeHTTP(rec, req)
		if rec.Code != tt.wantCode {
			t.Errorf("user %q: status = %d, want %d", tt.userID, rec.Code, tt.wantCode)
		}
	}
}

// =========================================================================
// COOKIES
// =========================================================================

func TestSessionCookies(t *testing.T) {
	rec := httptest.NewRecorder()
	SetSessionCookie(rec, "abc", DefaultTokenTTL)
	ClearSessionCookie(rec)

	cookies := rec.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("got %d cookies, want 2", len(cookies))
	}
	if cookies[0].Value != "abc" || !cookies[0].HttpOnly {
		t.Errorf("set cookie = %+v", cookies[0])
	}
	if cookies[1].MaxAge >= 0 {
		t.Errorf("clear cookie MaxAge = %d, want negative", cookies[1].MaxAge)
	}
}
