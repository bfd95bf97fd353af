// ABOUTME: In-memory fake of the backend REST API for client tests.
// ABOUTME: Records calls and headers per endpoint and can hold requests open.
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/2389-research/backstage/internal/logging"
	"github.com/2389-research/backstage/internal/models"
	"github.com/2389-research/backstage/internal/session"
	"github.com/2389-research/backstage/internal/storage"
)

type fakeBackend struct {
	t   *testing.T
	srv *httptest.Server

	mu          sync.Mutex
	token       string
	loginBody   string
	profiles    map[string]*models.Profile
	posts       []models.Post
	calls       map[string]int
	headers     map[string]http.Header
	bodies      map[string][]byte
	formFields  map[string]map[string]string
	formFiles   map[string][]string
	profileGate chan struct{}
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{
		t:     t,
		token: "T1",
		profiles: map[string]*models.Profile{
			"alice": {Username: "alice", Nom: "Alice", Prenom: "Liddell", Bio: "old bio", ProfilePicture: "pic.jpg", UserType: "artist"},
		},
		posts: []models.Post{
			{ID: 1, Username: "bob", Content: "first", UserAvatar: "bob.png", CreatedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)},
		},
		calls:      map[string]int{},
		headers:    map[string]http.Header{},
		bodies:     map[string][]byte{},
		formFields: map[string]map[string]string{},
		formFiles:  map[string][]string{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login/", b.record("loginUser", b.login))
	mux.HandleFunc("POST /api/auth/signup/", b.record("signupUser", b.created))
	mux.HandleFunc("POST /api/auth/forgot-password/", b.record("forgotPassword", b.ok))
	mux.HandleFunc("POST /api/auth/reset-password/", b.record("resetPassword", b.ok))
	mux.HandleFunc("GET /api/auth/profile/{username}/", b.record("getUserProfile", b.authed(b.getProfile)))
	mux.HandleFunc("PUT /api/auth/profile/update/", b.record("updateProfile", b.authed(b.updateProfile)))
	mux.HandleFunc("GET /feed/posts/", b.record("getExploreFeed", b.authed(b.getFeed)))
	mux.HandleFunc("POST /feed/posts/create/", b.record("createPost", b.authed(b.createPost)))

	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) record(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.calls[name]++
		b.headers[name] = r.Header.Clone()
		b.mu.Unlock()

		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			if err := r.ParseMultipartForm(32 << 20); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			fields := map[string]string{}
			for k, v := range r.MultipartForm.Value {
				fields[k] = v[0]
			}
			var files []string
			for k := range r.MultipartForm.File {
				files = append(files, k)
			}
			b.mu.Lock()
			b.formFields[name] = fields
			b.formFiles[name] = files
			b.mu.Unlock()
		} else if r.Body != nil {
			data, _ := io.ReadAll(r.Body)
			b.mu.Lock()
			b.bodies[name] = data
			b.mu.Unlock()
		}
		next(w, r)
	}
}

func (b *fakeBackend) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		want := "Bearer " + b.token
		b.mu.Unlock()
		if r.Header.Get("Authorization") != want {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Given token not valid for any token type"})
			return
		}
		next(w, r)
	}
}

func (b *fakeBackend) login(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	raw := b.loginBody
	var req models.LoginRequest
	_ = json.Unmarshal(b.bodies["loginUser"], &req)
	b.mu.Unlock()

	if raw != "" {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, raw)
		return
	}
	if req.Password != "secret" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		return
	}
	writeJSON(w, http.StatusOK, models.LoginResponse{
		Access:         "T1",
		Refresh:        "T2",
		Username:       "alice",
		ProfilePicture: "pic.jpg",
		UserType:       "artist",
	})
}

func (b *fakeBackend) created(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusCreated, map[string]string{"message": "created"})
}

func (b *fakeBackend) ok(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

func (b *fakeBackend) getProfile(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	gate := b.profileGate
	b.mu.Unlock()
	if gate != nil {
		<-gate
	}

	b.mu.Lock()
	p, ok := b.profiles[r.PathValue("username")]
	var out models.Profile
	if ok {
		out = *p
	}
	b.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *fakeBackend) updateProfile(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.profiles[r.FormValue("username")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	p.Nom = r.FormValue("nom")
	p.Prenom = r.FormValue("prenom")
	p.Bio = r.FormValue("bio")
	if _, hdr, err := r.FormFile("profile_picture"); err == nil {
		p.ProfilePicture = hdr.Filename
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Profile updated"})
}

func (b *fakeBackend) getFeed(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	posts := append([]models.Post(nil), b.posts...)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, posts)
}

func (b *fakeBackend) createPost(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	post := models.Post{
		ID:        int64(len(b.posts) + 1),
		Username:  "alice",
		Content:   r.FormValue("content"),
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if _, hdr, err := r.FormFile("image"); err == nil {
		post.Media = &models.Media{Type: models.MediaImage, URL: "/media/posts/" + hdr.Filename}
	}
	b.posts = append([]models.Post{post}, b.posts...)
	writeJSON(w, http.StatusCreated, post)
}

func (b *fakeBackend) callCount(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[name]
}

func (b *fakeBackend) header(name string) http.Header {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.headers[name]
}

func (b *fakeBackend) body(name string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bodies[name]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// newTestClient builds a client against b with a file-backed session.
func newTestClient(t *testing.T, b *fakeBackend, opts ...Option) (*Client, *session.Manager, storage.KeyValue) {
	t.Helper()
	kv, err := storage.NewFileKV(filepath.Join(t.TempDir(), "session.yaml"))
	if err != nil {
		t.Fatalf("NewFileKV error: %v", err)
	}
	mgr := session.NewManager(kv, session.WithLogger(logging.Discard()))
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	c, err := New(b.srv.URL, mgr, opts...)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return c, mgr, kv
}

func aliceSession() models.Credentials {
	return models.Credentials{AccessToken: "T1", RefreshToken: "T2", Username: "alice"}
}
