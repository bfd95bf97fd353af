// ABOUTME: Core data models for sessions, profiles, feed posts, and uploads.
// ABOUTME: Mirrors the backend JSON contract and holds client-side invariants.
package models

import (
	"io"
	"strings"
	"time"
)

// User is the identity snapshot stored alongside the session tokens.
type User struct {
	Username       string `json:"username"`
	ProfilePicture string `json:"profile_picture,omitempty"`
	UserType       string `json:"user_type,omitempty"`
}

// Credentials is the full set of values the session store persists.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	Username     string
	User         *User
}

// Session is a read-only view of the current credentials.
type Session struct {
	Credentials
}

// Authenticated reports whether both the access token and username are present.
// A session holding only one of them is treated as no session.
func (s Session) Authenticated() bool {
	return s.AccessToken != "" && s.Username != ""
}

// ProfilePost is the thumbnail entry listed on a profile.
type ProfilePost struct {
	ID    int64  `json:"id"`
	Image string `json:"image"`
}

// Profile is a user's public profile as returned by the backend.
type Profile struct {
	Username       string        `json:"username"`
	Nom            string        `json:"nom"`
	Prenom         string        `json:"prenom"`
	Bio            string        `json:"bio"`
	Location       string        `json:"location"`
	UserType       string        `json:"user_type"`
	ProfilePicture string        `json:"profile_picture"`
	CoverPhoto     string        `json:"coverPhoto"`
	Followers      int           `json:"followers"`
	Following      int           `json:"following"`
	Likes          int           `json:"likes"`
	Posts          []ProfilePost `json:"posts"`
}

// DisplayName joins the first and last name.
func (p *Profile) DisplayName() string {
	return strings.TrimSpace(p.Nom + " " + p.Prenom)
}

// MediaType classifies a post attachment.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaAudio MediaType = "audio"
	MediaVideo MediaType = "video"
)

// Media is an attachment on a feed post.
type Media struct {
	Type MediaType `json:"type"`
	URL  string    `json:"url"`
}

// Post is a single feed entry.
type Post struct {
	ID            int64     `json:"id"`
	Username      string    `json:"username"`
	UserAvatar    string    `json:"user_avatar"`
	UserType      string    `json:"user_type"`
	Content       string    `json:"content"`
	Media         *Media    `json:"media,omitempty"`
	LikesCount    int       `json:"likes_count"`
	CommentsCount int       `json:"comments_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// Upload is a local file headed for a multipart request.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// NewPost is the payload for creating a feed post.
type NewPost struct {
	Content string
	Image   *Upload
}

// Valid reports whether the post has text content or an attachment.
func (p NewPost) Valid() bool {
	return strings.TrimSpace(p.Content) != "" || p.Image != nil
}

// User types accepted at signup.
const (
	UserTypeArtist   = "artist"
	UserTypeProducer = "producer"
)

// SignupRequest is the JSON body for account creation.
type SignupRequest struct {
	Email      string   `json:"email"`
	Nom        string   `json:"nom"`
	Prenom     string   `json:"prenom"`
	Username   string   `json:"username"`
	Password   string   `json:"password"`
	UserType   string   `json:"user_type"`
	Genres     []string `json:"genres"`
	Talents    []string `json:"talents"`
	StudioName *string  `json:"studio_name"`
}

// LoginRequest is the JSON body for authentication.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the backend's answer to a successful login.
type LoginResponse struct {
	Access         string `json:"access"`
	Refresh        string `json:"refresh"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profile_picture"`
	UserType       string `json:"user_type"`
}

// Complete reports whether the response carries everything a session needs.
func (r LoginResponse) Complete() bool {
	return r.Access != "" && r.Refresh != "" && r.Username != ""
}

// ProfileUpdate is the multipart body for editing the current profile.
// ProfilePicture is only sent when non-nil.
type ProfileUpdate struct {
	Username       string
	Nom            string
	Prenom         string
	Bio            string
	ProfilePicture *Upload
}

// ForgotPasswordRequest asks the backend to send a reset code.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest sets a new password using an emailed code.
type ResetPasswordRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

// SplitList splits a comma-separated list, trimming blanks.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
