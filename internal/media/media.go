// ABOUTME: Media URL normalization and upload preparation.
// ABOUTME: Resolves backend media paths to absolute URLs and validates files before upload.
package media

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/2389-research/backstage/internal/apierr"
	"github.com/2389-research/backstage/internal/models"
)

// DefaultPlaceholder is shown when a profile has no picture.
const DefaultPlaceholder = "https://via.placeholder.com/150"

// DefaultMaxUploadBytes caps uploads when config leaves it unset.
const DefaultMaxUploadBytes int64 = 10 << 20

const (
	mediaRoot       = "/media/"
	profilePicsPath = "/media/profile_pics/"
)

var schemePrefix = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*://`)

// HasScheme reports whether v already starts with a URL scheme.
func HasScheme(v string) bool {
	return schemePrefix.MatchString(v)
}

// Normalizer turns backend media references into absolute URLs.
type Normalizer struct {
	Origin      string // backend origin, e.g. http://host:8000
	Placeholder string // substituted for absent values
}

// NewNormalizer builds a normalizer for origin with the default placeholder.
func NewNormalizer(origin string) Normalizer {
	return Normalizer{Origin: strings.TrimRight(origin, "/"), Placeholder: DefaultPlaceholder}
}

// Normalize returns an absolute URL for v. It is pure and idempotent.
func (n Normalizer) Normalize(v string) string {
	v = strings.TrimSpace(v)
	origin := strings.TrimRight(n.Origin, "/")
	switch {
	case v == "":
		if n.Placeholder == "" {
			return DefaultPlaceholder
		}
		return n.Placeholder
	case HasScheme(v):
		return v
	case strings.HasPrefix(v, mediaRoot):
		return origin + v
	default:
		return origin + profilePicsPath + v
	}
}

// NormalizeProfile rewrites the picture and cover URLs of p in place.
func (n Normalizer) NormalizeProfile(p *models.Profile) {
	if p == nil {
		return
	}
	p.ProfilePicture = n.Normalize(p.ProfilePicture)
	p.CoverPhoto = n.Normalize(p.CoverPhoto)
}

// Resolve makes a media reference absolute without the profile-picture
// fallback rules. Blank values stay blank.
func (n Normalizer) Resolve(v string) string {
	v = strings.TrimSpace(v)
	switch {
	case v == "", HasScheme(v):
		return v
	case strings.HasPrefix(v, "/"):
		return strings.TrimRight(n.Origin, "/") + v
	default:
		return strings.TrimRight(n.Origin, "/") + mediaRoot + v
	}
}

// NormalizePost rewrites the avatar and attachment URLs of p in place.
func (n Normalizer) NormalizePost(p *models.Post) {
	if p == nil {
		return
	}
	p.UserAvatar = n.Normalize(p.UserAvatar)
	if p.Media != nil {
		p.Media.URL = n.Resolve(p.Media.URL)
	}
}

// KindOf classifies a content type as image, audio, or video.
func KindOf(contentType string) (models.MediaType, bool) {
	base, _, _ := mime.ParseMediaType(contentType)
	switch {
	case strings.HasPrefix(base, "image/"):
		return models.MediaImage, true
	case strings.HasPrefix(base, "audio/"):
		return models.MediaAudio, true
	case strings.HasPrefix(base, "video/"):
		return models.MediaVideo, true
	default:
		return "", false
	}
}

// ContentTypeFor guesses a content type from the file extension.
// Unknown extensions fall back to image/jpeg.
func ContentTypeFor(name string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); ct != "" {
		return ct
	}
	return "image/jpeg"
}

// CheckSize rejects uploads larger than max without contacting the backend.
func CheckSize(u *models.Upload, max int64) error {
	if u == nil || max <= 0 {
		return nil
	}
	if u.Size > max {
		return apierr.New(apierr.KindPayloadTooLarge,
			"%s is %s; the limit is %s.", u.Name, humanSize(u.Size), humanSize(max))
	}
	return nil
}

// OpenUpload opens a local file for upload. The caller closes the returned file.
func OpenUpload(path string) (*models.Upload, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, nil, fmt.Errorf("%s is a directory", path)
	}

	name := filepath.Base(path)
	return &models.Upload{
		Name:        name,
		ContentType: ContentTypeFor(name),
		Size:        info.Size(),
		Body:        f,
	}, f, nil
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
