// ABOUTME: Tests for the auth, profile, and feed MCP tool handlers.
// ABOUTME: Drives each tool against the stub backend and checks text results.
package mcp

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func login(t *testing.T, s *Server) {
	t.Helper()
	result := callTool(t, s, "login", map[string]string{"email": "alice@example.com", "password": "secret"})
	if result.IsError {
		t.Fatalf("login failed: %s", getTextContent(result))
	}
}

func TestLoginValid(t *testing.T) {
	s, _, store := makeServer(t)

	result := callTool(t, s, "login", map[string]string{"email": "alice@example.com", "password": "secret"})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", getTextContent(result))
	}
	if !strings.Contains(getTextContent(result), "alice") {
		t.Errorf("expected username in response, got: %s", getTextContent(result))
	}
	if store.AccessToken() != "T1" {
		t.Errorf("expected session token T1, got %q", store.AccessToken())
	}
}

func TestLoginBadCredentials(t *testing.T) {
	s, _, store := makeServer(t)

	result := callTool(t, s, "login", map[string]string{"email": "alice@example.com", "password": "nope"})
	if !result.IsError {
		t.Fatal("expected error for bad credentials")
	}
	text := getTextContent(result)
	if !strings.Contains(text, "unauthorized") || !strings.Contains(text, "Invalid credentials") {
		t.Errorf("expected unauthorized error, got: %s", text)
	}
	if store.Session().Authenticated() {
		t.Error("expected no session after failed login")
	}
}

func TestLoginRequiresFields(t *testing.T) {
	s, b, _ := makeServer(t)

	result := callTool(t, s, "login", map[string]string{"email": ""})
	if !result.IsError {
		t.Error("expected error for missing credentials")
	}
	if b.count("login") != 0 {
		t.Error("expected no request for missing credentials")
	}
}

func TestWhoami(t *testing.T) {
	s, _, _ := makeServer(t)

	if text := getTextContent(callTool(t, s, "whoami", map[string]string{})); !strings.Contains(text, "Not logged in") {
		t.Errorf("expected not logged in, got: %s", text)
	}

	login(t, s)
	text := getTextContent(callTool(t, s, "whoami", map[string]string{}))
	if !strings.Contains(text, "Logged in as alice (artist)") {
		t.Errorf("expected identity, got: %s", text)
	}
	if !strings.Contains(text, "/media/profile_pics/pic.jpg") {
		t.Errorf("expected normalized picture URL, got: %s", text)
	}
}

func TestLogoutClearsSession(t *testing.T) {
	s, _, store := makeServer(t)
	login(t, s)

	result := callTool(t, s, "logout", map[string]string{})
	if result.IsError {
		t.Fatalf("logout failed: %s", getTextContent(result))
	}
	if store.Session().Authenticated() {
		t.Error("expected session cleared")
	}
}

func TestSignup(t *testing.T) {
	s, b, _ := makeServer(t)

	result := callTool(t, s, "signup", map[string]interface{}{
		"email": "p@example.com", "nom": "Pat", "prenom": "Doe", "username": "pat",
		"password": "pw", "user_type": "producer", "studio_name": "Blue Room",
	})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", getTextContent(result))
	}
	if b.count("signup") != 1 {
		t.Errorf("expected one signup request, got %d", b.count("signup"))
	}
}

func TestSignupValidation(t *testing.T) {
	s, b, _ := makeServer(t)

	result := callTool(t, s, "signup", map[string]interface{}{
		"email": "p@example.com", "nom": "Pat", "prenom": "Doe", "username": "pat",
		"password": "pw", "user_type": "producer",
	})
	if !result.IsError {
		t.Error("expected error for producer without studio name")
	}
	if b.count("signup") != 0 {
		t.Error("expected no request when validation fails")
	}
}

func TestResetPassword(t *testing.T) {
	s, b, _ := makeServer(t)

	result := callTool(t, s, "reset_password", map[string]string{"email": "alice@example.com"})
	if result.IsError || !strings.Contains(getTextContent(result), "Reset code sent") {
		t.Fatalf("unexpected forgot result: %s", getTextContent(result))
	}

	result = callTool(t, s, "reset_password", map[string]string{
		"email": "alice@example.com", "code": "123456", "new_password": "new",
	})
	if result.IsError || !strings.Contains(getTextContent(result), "Password updated") {
		t.Fatalf("unexpected reset result: %s", getTextContent(result))
	}
	if b.count("forgot") != 1 || b.count("reset") != 1 {
		t.Errorf("expected one forgot and one reset request, got %d and %d", b.count("forgot"), b.count("reset"))
	}
}

func TestGetProfileRequiresLogin(t *testing.T) {
	s, b, _ := makeServer(t)

	result := callTool(t, s, "get_profile", map[string]string{})
	if !result.IsError {
		t.Error("expected error when not logged in")
	}
	if !strings.Contains(getTextContent(result), "not logged in") {
		t.Errorf("expected 'not logged in' error, got: %s", getTextContent(result))
	}
	if b.count("profile") != 0 {
		t.Error("expected no request without a username")
	}
}

func TestGetProfileCachedAndRefreshed(t *testing.T) {
	s, b, _ := makeServer(t)
	login(t, s)

	result := callTool(t, s, "get_profile", map[string]string{})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", getTextContent(result))
	}
	text := getTextContent(result)
	for _, want := range []string{"@alice - Alice Liddell [artist]", "old bio", "/media/profile_pics/pic.jpg", "/media/posts/a.jpg"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected profile text to contain %q, got: %s", want, text)
		}
	}

	callTool(t, s, "get_profile", map[string]string{"username": "alice"})
	if b.count("profile") != 1 {
		t.Errorf("expected cached second read, got %d requests", b.count("profile"))
	}

	callTool(t, s, "get_profile", map[string]interface{}{"refresh": true})
	if b.count("profile") != 2 {
		t.Errorf("expected refresh to refetch, got %d requests", b.count("profile"))
	}
}

func TestGetProfileNotFound(t *testing.T) {
	s, _, _ := makeServer(t)
	login(t, s)

	result := callTool(t, s, "get_profile", map[string]string{"username": "nobody"})
	if !result.IsError || !strings.Contains(getTextContent(result), "not_found") {
		t.Errorf("expected not_found error, got: %s", getTextContent(result))
	}
}

func TestUpdateProfileInvalidatesCache(t *testing.T) {
	s, b, _ := makeServer(t)
	login(t, s)
	callTool(t, s, "get_profile", map[string]string{})

	pic := filepath.Join(t.TempDir(), "me.png")
	if err := os.WriteFile(pic, []byte("png"), 0600); err != nil {
		t.Fatal(err)
	}

	result := callTool(t, s, "update_profile", map[string]string{"nom": "Alice", "prenom": "L", "bio": "new bio", "picture_path": pic})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", getTextContent(result))
	}

	b.mu.Lock()
	form := b.form
	b.mu.Unlock()
	if form["username"] != "alice" || form["bio"] != "new bio" || form["profile_picture"] != "me.png" {
		t.Errorf("unexpected form %v", form)
	}

	text := getTextContent(callTool(t, s, "get_profile", map[string]string{}))
	if !strings.Contains(text, "new bio") {
		t.Errorf("expected refetched profile, got: %s", text)
	}
	if b.count("profile") != 2 {
		t.Errorf("expected refetch after update, got %d requests", b.count("profile"))
	}
}

func TestUpdateProfileKeepsOmittedFields(t *testing.T) {
	s, b, _ := makeServer(t)
	login(t, s)

	result := callTool(t, s, "update_profile", map[string]string{"bio": "only the bio"})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", getTextContent(result))
	}

	b.mu.Lock()
	form := b.form
	b.mu.Unlock()
	if form["nom"] != "Alice" || form["prenom"] != "Liddell" {
		t.Errorf("expected current names to be kept, got %v", form)
	}
	if form["bio"] != "only the bio" {
		t.Errorf("expected new bio, got %q", form["bio"])
	}
	if _, ok := form["profile_picture"]; ok {
		t.Error("expected no picture when picture_path is omitted")
	}
}

func TestUpdateProfileRequiresSession(t *testing.T) {
	s, b, _ := makeServer(t)

	result := callTool(t, s, "update_profile", map[string]string{"bio": "x"})
	if !result.IsError {
		t.Error("expected error when not logged in")
	}
	if b.count("update") != 0 || b.count("profile") != 0 {
		t.Error("expected no requests without a session")
	}
}

func TestUpdateProfileMissingPicture(t *testing.T) {
	s, b, _ := makeServer(t)
	login(t, s)

	result := callTool(t, s, "update_profile", map[string]string{"picture_path": "/does/not/exist.png"})
	if !result.IsError {
		t.Error("expected error for missing picture file")
	}
	if b.count("update") != 0 {
		t.Error("expected no request when the picture cannot be opened")
	}
}

func TestReadFeed(t *testing.T) {
	s, _, _ := makeServer(t)
	login(t, s)

	result := callTool(t, s, "read_feed", map[string]string{})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", getTextContent(result))
	}
	text := getTextContent(result)
	if !strings.Contains(text, "@bob") || !strings.Contains(text, "first post") {
		t.Errorf("expected feed post, got: %s", text)
	}
}

func TestReadFeedRequiresSession(t *testing.T) {
	s, b, _ := makeServer(t)

	result := callTool(t, s, "read_feed", map[string]string{})
	if !result.IsError {
		t.Error("expected error without a session")
	}
	if b.count("feed") != 1 {
		t.Errorf("expected the request to reach the backend, got %d", b.count("feed"))
	}
}

func TestCreatePostShowsInFeed(t *testing.T) {
	s, b, _ := makeServer(t)
	login(t, s)
	callTool(t, s, "read_feed", map[string]string{})

	result := callTool(t, s, "create_post", map[string]string{"content": "Hello from backstage!"})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", getTextContent(result))
	}
	if !strings.Contains(getTextContent(result), "Post created (ID: 2)") {
		t.Errorf("unexpected result: %s", getTextContent(result))
	}

	text := getTextContent(callTool(t, s, "read_feed", map[string]interface{}{"limit": 1}))
	if !strings.Contains(text, "Hello from backstage!") {
		t.Errorf("expected new post first in feed, got: %s", text)
	}
	if strings.Contains(text, "@bob") {
		t.Errorf("expected limit to trim the feed, got: %s", text)
	}
	if b.count("feed") != 2 {
		t.Errorf("expected feed refetched after post, got %d requests", b.count("feed"))
	}
}

func TestCreatePostRequiresContent(t *testing.T) {
	s, b, _ := makeServer(t)
	login(t, s)

	result := callTool(t, s, "create_post", map[string]string{"content": "   "})
	if !result.IsError {
		t.Error("expected error when content is empty")
	}
	if b.count("create") != 0 {
		t.Error("expected no request for empty post")
	}
}

func TestCreatePostRequiresLogin(t *testing.T) {
	s, _, _ := makeServer(t)

	result := callTool(t, s, "create_post", map[string]string{"content": "This should fail"})
	if !result.IsError || !strings.Contains(getTextContent(result), "unauthorized") {
		t.Errorf("expected unauthorized error, got: %s", getTextContent(result))
	}
}
