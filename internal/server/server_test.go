package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"elib/internal/app"
	"elib/internal/ratelimit"
	"elib/pkg/domain"
	"elib/pkg/storage"
	"elib/pkg/store"
)

type memoryMedia struct {
	mu        sync.Mutex
	objects   map[string]bool
	destroyed []string
}

func (m *memoryMedia) Upload(_ context.Context, _ string, opts storage.UploadOptions) (storage.UploadResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string]bool{}
	}
	name := opts.PublicID + "." + opts.Format
	m.objects[opts.Folder+"/"+name] = true
	return storage.UploadResult{
		PublicID:  opts.Folder + "/" + opts.PublicID,
		SecureURL: "http://media.test/elib/" + string(opts.ResourceType) + "/" + opts.Folder + "/" + name,
	}, nil
}

func (m *memoryMedia) Destroy(_ context.Context, publicID string, rt storage.ResourceType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroyed = append(m.destroyed, string(rt)+":"+publicID)
	return nil
}

type testServer struct {
	handler http.Handler
	media   *memoryMedia
	store   *store.MemoryStore
	staging string
}

func newTestServer(t *testing.T, limiter Limiter) *testServer {
	t.Helper()
	dir := t.TempDir()
	staging, err := storage.NewStaging(dir)
	if err != nil {
		t.Fatalf("new staging: %v", err)
	}
	sessions, err := store.NewJWTSessionStore("test-secret", time.Hour, store.NewMemoryTokenRevoker(), store.JWTOptions{})
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	st := store.NewMemoryStore()
	media := &memoryMedia{}
	core, err := app.New(app.Config{Store: st, Media: media, Sessions: sessions, Staging: staging})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	srv, err := New(Config{App: core, Staging: staging, MaxUploadBytes: 1024, AuthLimiter: limiter})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return &testServer{handler: srv.Router(), media: media, store: st, staging: dir}
}

func (ts *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) postJSON(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return ts.do(t, req)
}

func (ts *testServer) register(t *testing.T, email string) string {
	t.Helper()
	rec := ts.postJSON(t, "/api/users", map[string]string{"name": "Reader", "email": email, "password": "pw"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d body %s", email, rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp["accessToken"] == "" {
		t.Fatalf("register response: %s err=%v", rec.Body.String(), err)
	}
	return resp["accessToken"]
}

type filePart struct {
	field, name, contentType, body string
}

func multipartBody(t *testing.T, fields map[string]string, files ...filePart) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+f.field+`"; filename="`+f.name+`"`)
		h.Set("Content-Type", f.contentType)
		w, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		_, _ = w.Write([]byte(f.body))
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func bookRequest(t *testing.T, method, path, token string, fields map[string]string, files ...filePart) *http.Request {
	t.Helper()
	body, contentType := multipartBody(t, fields, files...)
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", contentType)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

var (
	coverPart = filePart{field: "coverImage", name: "cover.png", contentType: "image/png", body: "png-bytes"}
	filePDF   = filePart{field: "file", name: "book.pdf", contentType: "application/pdf", body: "%PDF-1.4"}
)

func (ts *testServer) createBook(t *testing.T, token string) string {
	t.Helper()
	rec := ts.do(t, bookRequest(t, http.MethodPost, "/api/books", token,
		map[string]string{"title": "Dune", "genre": "scifi"}, coverPart, filePDF))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create book: status %d body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp["id"] == "" {
		t.Fatalf("create response: %s err=%v", rec.Body.String(), err)
	}
	return resp["id"]
}

func (ts *testServer) getBook(t *testing.T, id string) domain.Book {
	t.Helper()
	rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/api/books/"+id, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get book %s: %d %s", id, rec.Code, rec.Body.String())
	}
	var book domain.Book
	if err := json.Unmarshal(rec.Body.Bytes(), &book); err != nil {
		t.Fatalf("decode book: %v", err)
	}
	return book
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return resp
}

func assertStagingEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read staging dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected staging dir to be empty, found %d files", len(entries))
	}
}

func TestRootAndHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Welcome to elib apis") {
		t.Fatalf("root: %d %s", rec.Code, rec.Body.String())
	}
	rec = ts.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
	rec = ts.do(t, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown path: %d", rec.Code)
	}
}

func TestRegisterAndLoginScenarios(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.register(t, "a@x.io")

	rec := ts.postJSON(t, "/api/users", map[string]string{"name": "Other", "email": "a@x.io", "password": "pw2"})
	if rec.Code != http.StatusBadRequest || decodeError(t, rec).Message != "Email registered already" {
		t.Fatalf("duplicate register: %d %s", rec.Code, rec.Body.String())
	}

	rec = ts.postJSON(t, "/api/users", map[string]string{"name": "", "email": "b@x.io", "password": "pw"})
	if rec.Code != http.StatusBadRequest || decodeError(t, rec).Message != "All fields are required" {
		t.Fatalf("missing name: %d %s", rec.Code, rec.Body.String())
	}

	rec = ts.postJSON(t, "/api/users/login", map[string]string{"email": "a@x.io", "password": "wrong"})
	if rec.Code != http.StatusBadRequest || decodeError(t, rec).Message != "Username or password incorrect" {
		t.Fatalf("wrong password: %d %s", rec.Code, rec.Body.String())
	}

	rec = ts.postJSON(t, "/api/users/login", map[string]string{"email": "nobody@x.io", "password": "pw"})
	if rec.Code != http.StatusNotFound || decodeError(t, rec).Message != "User not found" {
		t.Fatalf("unknown user: %d %s", rec.Code, rec.Body.String())
	}

	rec = ts.postJSON(t, "/api/users/login", map[string]string{"email": "a@x.io", "password": "pw"})
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "accessToken") {
		t.Fatalf("login: %d %s", rec.Code, rec.Body.String())
	}
}

func TestGuardMessages(t *testing.T) {
	ts := newTestServer(t, nil)
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"missing header", "", "Authorization token is required"},
		{"no token", "Bearer", "Invalid format token"},
		{"wrong scheme", "Basic abc", "Invalid format token"},
		{"garbage token", "Bearer not-a-jwt", "Token expired"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodDelete, "/api/books/some-id", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := ts.do(t, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			got := decodeError(t, rec)
			if got.Message != tc.want || got.RequestID == "" || got.RequestID != rec.Header().Get("X-Request-Id") {
				t.Fatalf("unexpected error body: %+v", got)
			}
		})
	}
}

func TestCreateBookFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.register(t, "a@x.io")
	id := ts.createBook(t, token)
	assertStagingEmpty(t, ts.staging)

	book := ts.getBook(t, id)
	if again := ts.getBook(t, id); again != book {
		t.Fatalf("repeated get differs: %+v vs %+v", book, again)
	}
	if book.Title != "Dune" || !strings.HasPrefix(book.CoverImage, "http://media.test/elib/image/book-covers/") || !strings.HasSuffix(book.File, ".pdf") {
		t.Fatalf("unexpected book: %+v", book)
	}

	rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/api/books", nil))
	var books []domain.Book
	if err := json.Unmarshal(rec.Body.Bytes(), &books); err != nil || len(books) != 1 {
		t.Fatalf("list books: %s err=%v", rec.Body.String(), err)
	}

	rec = ts.do(t, httptest.NewRequest(http.MethodGet, "/api/books/missing", nil))
	if rec.Code != http.StatusNotFound || decodeError(t, rec).Message != "Book not found" {
		t.Fatalf("missing book: %d %s", rec.Code, rec.Body.String())
	}
}

func TestCreateBookRequiresFiles(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.register(t, "a@x.io")
	rec := ts.do(t, bookRequest(t, http.MethodPost, "/api/books", token,
		map[string]string{"title": "Dune", "genre": "scifi"}, coverPart))
	if rec.Code != http.StatusBadRequest || decodeError(t, rec).Message != "Cover image or filename is required" {
		t.Fatalf("missing file: %d %s", rec.Code, rec.Body.String())
	}
	if len(ts.media.objects) != 0 {
		t.Fatalf("no upload expected, got %v", ts.media.objects)
	}
	assertStagingEmpty(t, ts.staging)
}

func TestCreateBookRejectsOversizedAndDuplicateParts(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.register(t, "a@x.io")

	big := filePDF
	big.body = strings.Repeat("x", 2048)
	rec := ts.do(t, bookRequest(t, http.MethodPost, "/api/books", token,
		map[string]string{"title": "Dune", "genre": "scifi"}, coverPart, big))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized file: %d %s", rec.Code, rec.Body.String())
	}
	assertStagingEmpty(t, ts.staging)

	rec = ts.do(t, bookRequest(t, http.MethodPost, "/api/books", token,
		map[string]string{"title": "Dune", "genre": "scifi"}, coverPart, coverPart, filePDF))
	if rec.Code != http.StatusBadRequest || decodeError(t, rec).Message != "Unexpected field" {
		t.Fatalf("duplicate part: %d %s", rec.Code, rec.Body.String())
	}
	assertStagingEmpty(t, ts.staging)
}

func TestCreateBookFormLimits(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.register(t, "a@x.io")

	rec := ts.do(t, bookRequest(t, http.MethodPost, "/api/books", token,
		map[string]string{"title": strings.Repeat("t", maxFieldBytes+1), "genre": "scifi"}, coverPart, filePDF))
	if rec.Code != http.StatusBadRequest || decodeError(t, rec).Message != "invalid form data" {
		t.Fatalf("overlong field: %d %s", rec.Code, rec.Body.String())
	}
	assertStagingEmpty(t, ts.staging)

	// Three near-limit text fields exceed the total body cap.
	filler := strings.Repeat("n", maxFieldBytes/2)
	rec = ts.do(t, bookRequest(t, http.MethodPost, "/api/books", token,
		map[string]string{"title": "Dune", "genre": "scifi", "note1": filler, "note2": filler, "note3": filler}, coverPart, filePDF))
	if rec.Code != http.StatusRequestEntityTooLarge || decodeError(t, rec).Message != "File too large" {
		t.Fatalf("oversized body: %d %s", rec.Code, rec.Body.String())
	}
	assertStagingEmpty(t, ts.staging)
	if len(ts.media.objects) != 0 {
		t.Fatalf("no upload expected, got %v", ts.media.objects)
	}
}

func TestUpdateAndDeleteOwnership(t *testing.T) {
	ts := newTestServer(t, nil)
	owner := ts.register(t, "a@x.io")
	other := ts.register(t, "b@x.io")
	id := ts.createBook(t, owner)

	rec := ts.do(t, bookRequest(t, http.MethodPut, "/api/books/"+id, other, map[string]string{"title": "Mine now"}))
	if rec.Code != http.StatusForbidden || decodeError(t, rec).Message != "You can not update others book" {
		t.Fatalf("foreign update: %d %s", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/books/"+id, nil)
	req.Header.Set("Authorization", "Bearer "+other)
	rec = ts.do(t, req)
	if rec.Code != http.StatusForbidden || decodeError(t, rec).Message != "You can not delete others book" {
		t.Fatalf("foreign delete: %d %s", rec.Code, rec.Body.String())
	}
	if _, ok, _ := ts.store.GetBook(context.Background(), id); !ok {
		t.Fatalf("book should survive foreign delete")
	}

	before := ts.getBook(t, id)
	rec = ts.do(t, bookRequest(t, http.MethodPut, "/api/books/"+id, owner, map[string]string{"title": "Dune Messiah"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("owner update: %d %s", rec.Code, rec.Body.String())
	}
	var updated domain.Book
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil || updated.Title != "Dune Messiah" || updated.Genre != "scifi" {
		t.Fatalf("updated book: %+v err=%v", updated, err)
	}
	if updated.CoverImage != before.CoverImage || updated.File != before.File || updated.Author != before.Author {
		t.Fatalf("update without files changed assets: before %+v after %+v", before, updated)
	}
	if len(ts.media.destroyed) != 0 {
		t.Fatalf("update without files must not destroy assets, got %v", ts.media.destroyed)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/books/"+id, nil)
	req.Header.Set("Authorization", "Bearer "+owner)
	rec = ts.do(t, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("owner delete: %d %s", rec.Code, rec.Body.String())
	}
	if len(ts.media.destroyed) != 2 {
		t.Fatalf("expected both assets destroyed, got %v", ts.media.destroyed)
	}
	rec = ts.do(t, httptest.NewRequest(http.MethodGet, "/api/books/"+id, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("deleted book still readable: %d", rec.Code)
	}
}

func TestUpdateBookAcceptsJSONBody(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.register(t, "a@x.io")
	id := ts.createBook(t, token)

	req := httptest.NewRequest(http.MethodPut, "/api/books/"+id, strings.NewReader(`{"genre":"classic"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := ts.do(t, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"genre":"classic"`) {
		t.Fatalf("json update: %d %s", rec.Code, rec.Body.String())
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.register(t, "a@x.io")

	req := httptest.NewRequest(http.MethodPost, "/api/users/logout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	if rec := ts.do(t, req); rec.Code != http.StatusNoContent {
		t.Fatalf("logout: %d %s", rec.Code, rec.Body.String())
	}

	rec := ts.do(t, bookRequest(t, http.MethodPost, "/api/books", token,
		map[string]string{"title": "Dune", "genre": "scifi"}, coverPart, filePDF))
	if rec.Code != http.StatusUnauthorized || decodeError(t, rec).Message != "Token expired" {
		t.Fatalf("revoked token: %d %s", rec.Code, rec.Body.String())
	}
}

func TestAuthRateLimit(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(redis.Addr(), "", "test:auth", 2, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	t.Cleanup(func() { _ = limiter.Close() })
	ts := newTestServer(t, limiter)

	for i := 0; i < 2; i++ {
		rec := ts.postJSON(t, "/api/users/login", map[string]string{"email": "x@x.io", "password": "pw"})
		if rec.Code == http.StatusTooManyRequests {
			t.Fatalf("request %d should pass the limiter", i+1)
		}
	}
	rec := ts.postJSON(t, "/api/users/login", map[string]string{"email": "x@x.io", "password": "pw"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request should be limited: %d", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("remaining header = %q", got)
	}
	if secs, err := strconv.Atoi(rec.Header().Get("Retry-After")); err != nil || secs < 1 || secs > 60 {
		t.Fatalf("retry-after header = %q", rec.Header().Get("Retry-After"))
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	for d, want := range map[time.Duration]int{
		0:                       1,
		1500 * time.Millisecond: 2,
		time.Minute:             60,
	} {
		if got := retryAfterSeconds(d); got != want {
			t.Fatalf("retryAfterSeconds(%v) = %d, want %d", d, got, want)
		}
	}
}

func TestErrorCodeMapping(t *testing.T) {
	tests := []struct {
		status int
		msg    string
		want   string
	}{
		{http.StatusNotFound, "Book not found", "BOOK_NOT_FOUND"},
		{http.StatusUnauthorized, "Token expired", "AUTH_INVALID_TOKEN"},
		{http.StatusInternalServerError, "Error while deleting the files", "MEDIA_DELETE_FAILED"},
		{http.StatusTooManyRequests, "slow down", "SYSTEM_RATE_LIMITED"},
		{http.StatusBadGateway, "upstream", "SYSTEM_INTERNAL_ERROR"},
	}
	for _, tc := range tests {
		if got := errorCode(tc.status, tc.msg); got != tc.want {
			t.Fatalf("errorCode(%d, %q) = %q, want %q", tc.status, tc.msg, got, tc.want)
		}
	}
}
