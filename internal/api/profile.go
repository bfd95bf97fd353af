// ABOUTME: Profile operations: cached profile reads, watches, and multipart profile updates.
// ABOUTME: Profile media URLs are normalized before results reach callers.
package api

import (
	"context"
	"strings"

	"github.com/2389-research/backstage/internal/apierr"
	"github.com/2389-research/backstage/internal/cache"
	"github.com/2389-research/backstage/internal/media"
	"github.com/2389-research/backstage/internal/models"
)

// ProfileState is one observed state of a watched profile.
type ProfileState struct {
	Status  cache.Status
	Profile *models.Profile
	Err     error
	Stale   bool
}

func (c *Client) profileFetcher(username string) cache.Fetcher {
	return func(ctx context.Context) (any, error) {
		var p models.Profile
		if err := c.do(ctx, GetUserProfile, username, nil, &p); err != nil {
			return nil, err
		}
		c.media.NormalizeProfile(&p)
		for i := range p.Posts {
			p.Posts[i].Image = c.media.Resolve(p.Posts[i].Image)
		}
		return &p, nil
	}
}

// GetUserProfile returns the profile for username, served from cache when
// fresh. Concurrent reads for the same user share one request.
func (c *Client) GetUserProfile(ctx context.Context, username string) (*models.Profile, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apierr.New(apierr.KindValidation, "A username is required.")
	}
	v, err := c.query(ctx, GetUserProfile, username, c.profileFetcher(username))
	if err != nil {
		return nil, err
	}
	return copyProfile(v), nil
}

// RefetchUserProfile reloads username's profile regardless of freshness.
func (c *Client) RefetchUserProfile(ctx context.Context, username string) (*models.Profile, error) {
	key := cache.Key{Endpoint: GetUserProfile.Name, Arg: username}
	v, err := c.cache.Refetch(ctx, key, GetUserProfile.Provides, c.profileFetcher(username))
	if err != nil {
		return nil, err
	}
	return copyProfile(v), nil
}

// WatchUserProfile delivers every state change of username's profile to fn
// until the subscription is closed.
func (c *Client) WatchUserProfile(username string, fn func(ProfileState)) *cache.Subscription {
	key := cache.Key{Endpoint: GetUserProfile.Name, Arg: username}
	return c.cache.Subscribe(key, GetUserProfile.Provides, c.profileFetcher(username), func(s cache.Snapshot) {
		fn(ProfileState{Status: s.Status, Profile: copyProfile(s.Data), Err: s.Err, Stale: s.Stale})
	})
}

// UpdateProfile edits the current user's profile. The picture is only sent
// when one is supplied. On success cached profiles are invalidated.
func (c *Client) UpdateProfile(ctx context.Context, upd models.ProfileUpdate) error {
	if err := c.requireSession(); err != nil {
		return err
	}
	if strings.TrimSpace(upd.Username) == "" {
		upd.Username = c.session.Session().Username
	}
	if err := media.CheckSize(upd.ProfilePicture, c.maxUpload); err != nil {
		return err
	}

	var f form
	f.set("username", upd.Username)
	f.set("nom", upd.Nom)
	f.set("prenom", upd.Prenom)
	f.set("bio", upd.Bio)
	f.attach("profile_picture", upd.ProfilePicture)

	p, err := f.payload()
	if err != nil {
		return apierr.Wrap(apierr.KindUnexpected, err, "failed to encode profile")
	}
	return c.mutate(ctx, UpdateProfile, "", p, nil)
}

func copyProfile(v any) *models.Profile {
	p, ok := v.(*models.Profile)
	if !ok || p == nil {
		return nil
	}
	out := *p
	out.Posts = append([]models.ProfilePost(nil), p.Posts...)
	return &out
}
