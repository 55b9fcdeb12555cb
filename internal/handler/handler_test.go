package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/pickleit/internal/auth"
	"github.com/sakif/pickleit/internal/handler"
	"github.com/sakif/pickleit/internal/model"
	"github.com/sakif/pickleit/internal/repository/sqlite"
	"github.com/sakif/pickleit/internal/service"
	"github.com/sakif/pickleit/internal/session"
	"github.com/sakif/pickleit/internal/statscache"
	"github.com/sakif/pickleit/internal/storage"
)

// =========================================================================
// TEST FIXTURE
// =========================================================================

// fixture is a router wired like the real server, over an in-memory
// database, a temp-dir image store, and an in-process session bus.
type fixture struct {
	router http.Handler
	db     *sqlite.DB
	auth   *service.AuthService
	tokens *auth.TokenService
	bus    session.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("handler-test-secret-0123456789", time.Hour)
	require.NoError(t, err)

	images, err := storage.NewDisk(t.TempDir(), "http://media.test")
	require.NoError(t, err)

	bus := session.NewMemoryBus()
	t.Cleanup(func() { bus.Close() })

	stats := statscache.New(statscache.NewMemory(), logger)
	authSvc := service.NewAuthService(db, tokens, auth.NewPasswordServiceForTest(4), bus, "admin@pickle.it", logger)
	methodSvc := service.NewMethodService(db, images, stats, logger)
	progressSvc := service.NewProgressService(db, stats, logger)

	ah := handler.NewAuthHandler(authSvc, nil, logger)
	mh := handler.NewMethodHandler(methodSvc, storage.Variants{Base: images.PublicBase()}, logger)
	ph := handler.NewProgressHandler(progressSvc, logger)
	sh := handler.NewSessionStreamHandler(bus, logger)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/signup", ah.HandleSignUp)
		r.Post("/auth/signin", ah.HandleSignIn)
		r.With(auth.OptionalAuth(tokens)).Post("/auth/signout", ah.HandleSignOut)
		r.With(auth.OptionalAuth(tokens)).Get("/auth/session", ah.HandleSession)

		r.Get("/methods", mh.HandleList)
		r.Get("/methods/count", mh.HandleCount)
		r.Get("/methods/{id}", mh.HandleGet)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.Get("/me", ah.HandleMe)
			r.Get("/auth/stream", sh.HandleStream)
			r.Get("/saved", ph.HandleListSaved)
			r.Put("/saved/{methodID}", ph.HandleSave)
			r.Delete("/saved/{methodID}", ph.HandleUnsave)
			r.Put("/completed/{methodID}", ph.HandleComplete)
			r.Get("/completed/{methodID}", ph.HandleGetCompletion)
			r.Post("/achievements", ph.HandleAward)
			r.Get("/achievements/overview", ph.HandleOverview)
			r.Get("/profile", ph.HandleProfile)
			r.Post("/rpc/add_user_points", ph.HandleAddPoints)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAdmin(authSvc.IsAdmin))
				r.Post("/methods", mh.HandleCreate)
				r.Put("/methods/{id}", mh.HandleUpdate)
				r.Put("/methods/{id}/image", mh.HandleReplaceImage)
			})
		})
	})

	return &fixture{router: r, db: db, auth: authSvc, tokens: tokens, bus: bus}
}

// signUp registers email and returns its session cookie.
func (f *fixture) signUp(t *testing.T, email string) (*http.Cookie, string) {
	t.Helper()
	rr := f.do(t, http.MethodPost, "/api/auth/signup", nil,
		`{"email":"`+email+`","password":"brine123"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var body struct {
		User  model.User `json:"user"`
		Token string     `json:"token"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c, body.User.ID
		}
	}
	t.Fatal("signup did not set the session cookie")
	return nil, ""
}

func (f *fixture) do(t *testing.T, method, path string, cookie *http.Cookie, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func (f *fixture) createMethod(t *testing.T, title, category string) int64 {
	t.Helper()
	m := &model.Method{Title: title, Description: "d", Category: category, Duration: "1h"}
	require.NoError(t, f.db.CreateMethod(context.Background(), m))
	return m.ID
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	var e handler.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&e))
	return e
}

// =========================================================================
// AUTH
// =========================================================================

func TestAuthHandler_SignUpSignInSession(t *testing.T) {
	f := newFixture(t)

	cookie, uid := f.signUp(t, "cook@example.com")
	assert.True(t, cookie.HttpOnly)

	rr := f.do(t, http.MethodGet, "/api/auth/session", cookie, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), uid)

	rr = f.do(t, http.MethodGet, "/api/auth/session", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"user":null}`, rr.Body.String())

	rr = f.do(t, http.MethodPost, "/api/auth/signin", nil, `{"email":"cook@example.com","password":"nope123"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Invalid login credentials", decodeError(t, rr).Message)

	rr = f.do(t, http.MethodPost, "/api/auth/signin", nil, `{"email":"cook@example.com","password":"brine123"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAuthHandler_SignUpValidation(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/api/auth/signup", nil, `{"email":"cook@example.com","password":"123"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	e := decodeError(t, rr)
	assert.Equal(t, "validation_error", e.Error)
	assert.Equal(t, "password", e.Field)

	rr = f.do(t, http.MethodPost, "/api/auth/signup", nil, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAuthHandler_SignOutClearsCookie(t *testing.T) {
	f := newFixture(t)
	cookie, _ := f.signUp(t, "cook@example.com")

	rr := f.do(t, http.MethodPost, "/api/auth/signout", cookie, "")
	require.Equal(t, http.StatusOK, rr.Code)

	var cleared bool
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.CookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared)
}

func TestAuthHandler_MeRequiresAuth(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/api/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	cookie, uid := f.signUp(t, "admin@pickle.it")
	rr = f.do(t, http.MethodGet, "/api/me", cookie, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var u model.User
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&u))
	assert.Equal(t, uid, u.ID)
	assert.True(t, u.IsAdmin)
}

// =========================================================================
// METHODS
// =========================================================================

func TestMethodHandler_AdminGate(t *testing.T) {
	f := newFixture(t)
	body := `{"title":"Quick Pickles","description":"d","category":"Pickling","duration":"1h",
		"steps":[{"order":3,"title":"Pack"},{"order":1,"title":"Brine"}]}`

	rr := f.do(t, http.MethodPost, "/api/methods", nil, body)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	cook, _ := f.signUp(t, "cook@example.com")
	rr = f.do(t, http.MethodPost, "/api/methods", cook, body)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	admin, _ := f.signUp(t, "admin@pickle.it")
	rr = f.do(t, http.MethodPost, "/api/methods", admin, body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var got struct {
		model.Method
		ThumbnailURL string `json:"thumbnailUrl"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, storage.PlaceholderURL, got.ThumbnailURL)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, "Brine", got.Steps[0].Title)
	assert.Equal(t, 2, got.Steps[1].Order)
}

func TestMethodHandler_MissingFields(t *testing.T) {
	f := newFixture(t)
	admin, _ := f.signUp(t, "admin@pickle.it")

	rr := f.do(t, http.MethodPost, "/api/methods", admin, `{"title":"Only a title"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Please fill in all required fields", decodeError(t, rr).Message)
}

func TestMethodHandler_GetListCount(t *testing.T) {
	f := newFixture(t)
	id := f.createMethod(t, "Jam", "Canning")
	f.createMethod(t, "Jerky", "Drying")

	rr := f.do(t, http.MethodGet, "/api/methods/"+strconv.FormatInt(id, 10), nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"title":"Jam"`)

	rr = f.do(t, http.MethodGet, "/api/methods/abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/methods/999", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/methods?category=Drying", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list []model.Method
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "Jerky", list[0].Title)

	rr = f.do(t, http.MethodGet, "/api/methods/count", nil, "")
	assert.JSONEq(t, `{"count":2}`, rr.Body.String())
}

func TestMethodHandler_ReplaceImage(t *testing.T) {
	f := newFixture(t)
	admin, _ := f.signUp(t, "admin@pickle.it")
	id := f.createMethod(t, "Jam", "Canning")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="image"; filename="jam.png"`)
	hdr.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, _ = part.Write([]byte("\x89PNG fake"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPut, "/api/methods/"+strconv.FormatInt(id, 10)+"/image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(admin)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var got struct {
		model.Method
		ThumbnailURL string `json:"thumbnailUrl"`
		LQIPURL      string `json:"lqipUrl"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.True(t, strings.HasPrefix(got.ImageURL, "http://media.test/"))
	assert.Contains(t, got.ThumbnailURL, "width=400")
	assert.Contains(t, got.LQIPURL, "width=20")
}

// =========================================================================
// PROGRESS
// =========================================================================

func TestProgressHandler_SaveFlow(t *testing.T) {
	f := newFixture(t)
	cookie, _ := f.signUp(t, "cook@example.com")
	id := strconv.FormatInt(f.createMethod(t, "Jam", "Canning"), 10)

	rr := f.do(t, http.MethodGet, "/api/saved", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = f.do(t, http.MethodPut, "/api/saved/"+id, cookie, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/saved", cookie, "")
	assert.JSONEq(t, `{"methodIds":[`+id+`]}`, rr.Body.String())

	rr = f.do(t, http.MethodDelete, "/api/saved/"+id, cookie, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/saved", cookie, "")
	assert.JSONEq(t, `{"methodIds":[]}`, rr.Body.String())

	rr = f.do(t, http.MethodPut, "/api/saved/x1", cookie, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid method ID", decodeError(t, rr).Message)
}

func TestProgressHandler_AwardConflict(t *testing.T) {
	f := newFixture(t)
	cookie, _ := f.signUp(t, "cook@example.com")

	rr := f.do(t, http.MethodPost, "/api/achievements", cookie, `{"achievementId":"first-save"}`)
	assert.Equal(t, http.StatusCreated, rr.Code)

	rr = f.do(t, http.MethodPost, "/api/achievements", cookie, `{"achievementId":"first-save"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "conflict", decodeError(t, rr).Error)
}

func TestProgressHandler_PointsAndCompletion(t *testing.T) {
	f := newFixture(t)
	cookie, _ := f.signUp(t, "cook@example.com")
	id := strconv.FormatInt(f.createMethod(t, "Jam", "Canning"), 10)

	rr := f.do(t, http.MethodPut, "/api/completed/"+id, cookie, `{"notes":"set well","rating":4}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"created":true`)

	rr = f.do(t, http.MethodPut, "/api/completed/"+id, cookie, `{"notes":"set well","rating":4}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"created":false`)

	rr = f.do(t, http.MethodGet, "/api/completed/"+id, cookie, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"notes":"set well"`)

	rr = f.do(t, http.MethodPost, "/api/rpc/add_user_points", cookie, `{"points":25}`)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = f.do(t, http.MethodPost, "/api/rpc/add_user_points", cookie, `{"points":0}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/profile", cookie, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var p model.Profile
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&p))
	assert.Equal(t, 25, p.Points)

	rr = f.do(t, http.MethodGet, "/api/achievements/overview", cookie, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var ov service.Overview
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&ov))
	assert.Equal(t, 1, ov.Snapshot.CompletedCount)
	assert.True(t, ov.Snapshot.AllMethodsLearned)
	assert.Len(t, ov.Achievements, 6)
}

// =========================================================================
// SESSION STREAM
// =========================================================================

func TestSessionStream_CurrentThenSignOut(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	cookie, uid := f.signUp(t, "cook@example.com")

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/auth/stream"
	header := http.Header{}
	header.Set("Cookie", cookie.Name+"="+cookie.Value)
	ws, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer ws.Close()

	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ev session.Event
	require.NoError(t, ws.ReadJSON(&ev))
	assert.Equal(t, session.KindCurrent, ev.Kind)
	assert.Equal(t, uid, ev.UserID)

	// someone else's sign-in is not forwarded
	require.NoError(t, f.bus.Publish(context.Background(), session.Event{Kind: session.KindSignedIn, UserID: "other"}))
	f.auth.SignOut(context.Background(), uid)

	require.NoError(t, ws.ReadJSON(&ev))
	assert.Equal(t, session.KindSignedOut, ev.Kind)
	assert.Equal(t, uid, ev.UserID)
}

func TestSessionStream_RequiresAuth(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/auth/stream"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
