package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"blogapp/internal/accounts"
	"blogapp/internal/blogs"
	"blogapp/internal/http/router"
	"blogapp/internal/images"
	"blogapp/internal/logging"
	"blogapp/internal/sessions"
	"blogapp/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLifetime = time.Hour

func newTestApp(t *testing.T) http.Handler {
	t.Helper()
	log := logging.Discard()

	db, err := storage.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	acc := accounts.NewStore(db, "users", log)
	mgr := sessions.NewManager(db, "sessions", testLifetime, log)
	bs := blogs.NewStore(db, "blogs", t.TempDir(), log)
	img := images.NewStore(t.TempDir(), log)

	ctx := context.Background()
	require.NoError(t, acc.Init(ctx))
	require.NoError(t, mgr.Init(ctx))
	require.NoError(t, bs.Init(ctx))
	require.NoError(t, img.Init())

	return router.Setup(router.Deps{
		Accounts: acc,
		Sessions: mgr,
		Blogs:    bs,
		Images:   img,
		Lifetime: testLifetime,
		ImageDir: t.TempDir(),
		Log:      log,
	})
}

func do(t *testing.T, app http.Handler, method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	return rec
}

func body(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	out := map[string]string{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "session_id" {
			return c
		}
	}
	t.Fatal("no session cookie in response")
	return nil
}

func signup(t *testing.T, app http.Handler, email, username string) {
	t.Helper()
	rec := do(t, app, "POST", "/api/signup",
		`{"firstname":"Ada","lastname":"Lovelace","email":"`+email+`","username":"`+username+`","password":"hunter2"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
}

func login(t *testing.T, app http.Handler, email string) *http.Cookie {
	t.Helper()
	rec := do(t, app, "POST", "/api/login", `{"email":"`+email+`","password":"hunter2"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	return sessionCookie(t, rec)
}

func TestSignupLoginLogout(t *testing.T) {
	app := newTestApp(t)

	signup(t, app, "a@x.com", "ada")

	// Duplicate email conflicts, first account untouched.
	rec := do(t, app, "POST", "/api/signup",
		`{"firstname":"Eve","email":"a@x.com","username":"eve","password":"pw"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Wrong password and unknown email are indistinguishable.
	wrongPw := do(t, app, "POST", "/api/login", `{"email":"a@x.com","password":"nope"}`, nil)
	unknown := do(t, app, "POST", "/api/login", `{"email":"ghost@x.com","password":"nope"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, wrongPw.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, body(t, wrongPw), body(t, unknown))

	rec = do(t, app, "POST", "/api/login", `{"email":"a@x.com","password":"hunter2"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	cookie := sessionCookie(t, rec)
	assert.NotEmpty(t, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(t, int(testLifetime.Seconds()), cookie.MaxAge)

	prof := do(t, app, "GET", "/api/profile", "", cookie)
	require.Equal(t, http.StatusOK, prof.Code)
	got := body(t, prof)
	assert.Equal(t, "ada", got["username"])
	assert.Equal(t, "a@x.com", got["email"])
	assert.Equal(t, "Ada Lovelace", got["realname"])

	out := do(t, app, "POST", "/api/logout", "", cookie)
	require.Equal(t, http.StatusOK, out.Code)
	assert.Negative(t, sessionCookie(t, out).MaxAge)

	prof = do(t, app, "GET", "/api/profile", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, prof.Code)
}

func TestAnonymousIsRejectedNotCrashed(t *testing.T) {
	app := newTestApp(t)

	assert.Equal(t, http.StatusUnauthorized, do(t, app, "GET", "/api/profile", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized,
		do(t, app, "POST", "/api/blogs", `{"title":"T","content":"c"}`, nil).Code)

	forged := &http.Cookie{Name: "session_id", Value: "forged-token"}
	assert.Equal(t, http.StatusUnauthorized, do(t, app, "GET", "/api/profile", "", forged).Code)
}

func TestSecondLoginInvalidatesFirst(t *testing.T) {
	app := newTestApp(t)
	signup(t, app, "a@x.com", "ada")

	first := login(t, app, "a@x.com")
	second := login(t, app, "a@x.com")

	assert.Equal(t, http.StatusUnauthorized, do(t, app, "GET", "/api/profile", "", first).Code)
	assert.Equal(t, http.StatusOK, do(t, app, "GET", "/api/profile", "", second).Code)
}

func TestProfileUpdateRotatesSession(t *testing.T) {
	app := newTestApp(t)
	signup(t, app, "a@x.com", "ada")
	old := login(t, app, "a@x.com")

	rec := do(t, app, "PUT", "/api/profile", `{"username":"countess"}`, old)
	require.Equal(t, http.StatusOK, rec.Code)
	fresh := sessionCookie(t, rec)
	assert.NotEqual(t, old.Value, fresh.Value)

	// The old token is dead; the new one carries the updated profile.
	assert.Equal(t, http.StatusUnauthorized, do(t, app, "GET", "/api/profile", "", old).Code)
	prof := do(t, app, "GET", "/api/profile", "", fresh)
	require.Equal(t, http.StatusOK, prof.Code)
	assert.Equal(t, "countess", body(t, prof)["username"])
}

func TestBlogLifecycle(t *testing.T) {
	app := newTestApp(t)
	signup(t, app, "a@x.com", "ada")
	cookie := login(t, app, "a@x.com")

	rec := do(t, app, "POST", "/api/blogs",
		`{"title":"MyTitle","tags":"go testing","content":"# Hello"}`, cookie)
	require.Equal(t, http.StatusCreated, rec.Code)
	postID := body(t, rec)["id"]
	require.NotEmpty(t, postID)
	author := strings.SplitN(postID, "_", 2)[0]

	// Same title again conflicts without touching the stored post.
	rec = do(t, app, "POST", "/api/blogs",
		`{"title":"MyTitle","content":"other"}`, cookie)
	assert.Equal(t, http.StatusConflict, rec.Code)

	view := do(t, app, "GET", "/api/blogs/"+author+"/MyTitle", "", nil)
	require.Equal(t, http.StatusOK, view.Code)
	assert.Contains(t, body(t, view)["html"], "<h1>Hello</h1>")

	found := do(t, app, "GET", "/api/blogs/search?title=My&tags=go", "", nil)
	require.Equal(t, http.StatusOK, found.Code)
	assert.Contains(t, found.Body.String(), "MyTitle")

	rec = do(t, app, "PUT", "/api/blogs/"+author+"/MyTitle",
		`{"tags":"go","content":"# Goodbye"}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	view = do(t, app, "GET", "/api/blogs/"+author+"/MyTitle", "", nil)
	assert.Contains(t, body(t, view)["html"], "<h1>Goodbye</h1>")

	// A different user cannot delete it.
	signup(t, app, "b@x.com", "bob")
	other := login(t, app, "b@x.com")
	assert.Equal(t, http.StatusForbidden,
		do(t, app, "DELETE", "/api/blogs/"+author+"/MyTitle", "", other).Code)

	require.Equal(t, http.StatusOK,
		do(t, app, "DELETE", "/api/blogs/"+author+"/MyTitle", "", cookie).Code)
	assert.Equal(t, http.StatusNotFound,
		do(t, app, "GET", "/api/blogs/"+author+"/MyTitle", "", nil).Code)
}

func TestRenameOntoExistingTitleRejected(t *testing.T) {
	app := newTestApp(t)
	signup(t, app, "a@x.com", "ada")
	cookie := login(t, app, "a@x.com")

	rec := do(t, app, "POST", "/api/blogs",
		`{"title":"First","content":"# First"}`, cookie)
	require.Equal(t, http.StatusCreated, rec.Code)
	author := strings.SplitN(body(t, rec)["id"], "_", 2)[0]

	rec = do(t, app, "POST", "/api/blogs",
		`{"title":"Second","content":"# Second"}`, cookie)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Renaming First onto Second's title conflicts and must leave both
	// posts exactly as they were.
	rec = do(t, app, "PUT", "/api/blogs/"+author+"/First",
		`{"title":"Second","content":"usurper"}`, cookie)
	assert.Equal(t, http.StatusConflict, rec.Code)

	view := do(t, app, "GET", "/api/blogs/"+author+"/First", "", nil)
	require.Equal(t, http.StatusOK, view.Code)
	assert.Contains(t, body(t, view)["html"], "<h1>First</h1>")

	view = do(t, app, "GET", "/api/blogs/"+author+"/Second", "", nil)
	require.Equal(t, http.StatusOK, view.Code)
	assert.Contains(t, body(t, view)["html"], "<h1>Second</h1>")
}

func TestRandomBlogs(t *testing.T) {
	app := newTestApp(t)
	signup(t, app, "a@x.com", "ada")
	cookie := login(t, app, "a@x.com")

	for _, title := range []string{"A", "B", "C"} {
		rec := do(t, app, "POST", "/api/blogs",
			`{"title":"`+title+`","content":"x"}`, cookie)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := do(t, app, "GET", "/api/blogs/random?count=2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var posts []map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &posts))
	assert.Len(t, posts, 2)

	assert.Equal(t, http.StatusBadRequest,
		do(t, app, "GET", "/api/blogs/random?count=zero", "", nil).Code)
}
