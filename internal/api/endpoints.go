// ABOUTME: Declarative table of backend endpoints and their cache tag relationships.
// ABOUTME: Queries provide tags; mutations invalidate them on success.
package api

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/2389-research/backstage/internal/cache"
)

// Cache tags for backend resources.
const (
	TagUserProfile cache.Tag = "UserProfile"
	TagPosts       cache.Tag = "Posts"
)

// OpKind separates cached reads from side-effecting writes.
type OpKind int

const (
	OpQuery OpKind = iota
	OpMutation
)

// Encoding is how a request body is serialized.
type Encoding int

const (
	EncodingNone Encoding = iota
	EncodingJSON
	EncodingMultipart
)

// Endpoint describes one backend operation.
type Endpoint struct {
	Name        string
	Kind        OpKind
	Method      string
	Path        string // may contain {username}
	Encoding    Encoding
	Provides    []cache.Tag
	Invalidates []cache.Tag

	// Authenticated marks endpoints where a 401 means the session is no
	// longer valid, as opposed to rejected credentials.
	Authenticated bool
}

// PathFor expands the path template with arg.
func (e Endpoint) PathFor(arg string) string {
	return strings.ReplaceAll(e.Path, "{username}", url.PathEscape(arg))
}

var (
	SignupUser = Endpoint{
		Name:     "signupUser",
		Kind:     OpMutation,
		Method:   http.MethodPost,
		Path:     "/api/auth/signup/",
		Encoding: EncodingJSON,
	}
	LoginUser = Endpoint{
		Name:     "loginUser",
		Kind:     OpMutation,
		Method:   http.MethodPost,
		Path:     "/api/auth/login/",
		Encoding: EncodingJSON,
	}
	GetUserProfile = Endpoint{
		Name:          "getUserProfile",
		Kind:          OpQuery,
		Method:        http.MethodGet,
		Path:          "/api/auth/profile/{username}/",
		Encoding:      EncodingNone,
		Provides:      []cache.Tag{TagUserProfile},
		Authenticated: true,
	}
	UpdateProfile = Endpoint{
		Name:          "updateProfile",
		Kind:          OpMutation,
		Method:        http.MethodPut,
		Path:          "/api/auth/profile/update/",
		Encoding:      EncodingMultipart,
		Invalidates:   []cache.Tag{TagUserProfile},
		Authenticated: true,
	}
	ForgotPassword = Endpoint{
		Name:     "forgotPassword",
		Kind:     OpMutation,
		Method:   http.MethodPost,
		Path:     "/api/auth/forgot-password/",
		Encoding: EncodingJSON,
	}
	ResetPassword = Endpoint{
		Name:     "resetPassword",
		Kind:     OpMutation,
		Method:   http.MethodPost,
		Path:     "/api/auth/reset-password/",
		Encoding: EncodingJSON,
	}
	GetExploreFeed = Endpoint{
		Name:          "getExploreFeed",
		Kind:          OpQuery,
		Method:        http.MethodGet,
		Path:          "/feed/posts/",
		Encoding:      EncodingNone,
		Provides:      []cache.Tag{TagPosts},
		Authenticated: true,
	}
	CreatePost = Endpoint{
		Name:          "createPost",
		Kind:          OpMutation,
		Method:        http.MethodPost,
		Path:          "/feed/posts/create/",
		Encoding:      EncodingMultipart,
		Invalidates:   []cache.Tag{TagPosts},
		Authenticated: true,
	}
)

// Endpoints lists every known endpoint.
func Endpoints() []Endpoint {
	return []Endpoint{
		SignupUser,
		LoginUser,
		GetUserProfile,
		UpdateProfile,
		ForgotPassword,
		ResetPassword,
		GetExploreFeed,
		CreatePost,
	}
}
