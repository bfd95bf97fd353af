// ABOUTME: Tests for profile reads, request sharing, updates, and invalidation.
// ABOUTME: Uses the fake backend to count network calls per endpoint.
package api

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389-research/backstage/internal/apierr"
	"github.com/2389-research/backstage/internal/cache"
	"github.com/2389-research/backstage/internal/models"
)

func TestGetUserProfileNormalizesMedia(t *testing.T) {
	b := newFakeBackend(t)
	c, mgr, _ := newTestClient(t, b)
	mgr.RestoreSession(aliceSession())

	p, err := c.GetUserProfile(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, b.srv.URL+"/media/profile_pics/pic.jpg", p.ProfilePicture)
	assert.Equal(t, "https://via.placeholder.com/150", p.CoverPhoto)
	assert.Equal(t, "Alice Liddell", p.DisplayName())
}

func TestGetUserProfileServedFromCache(t *testing.T) {
	b := newFakeBackend(t)
	c, mgr, _ := newTestClient(t, b)
	mgr.RestoreSession(aliceSession())

	first, err := c.GetUserProfile(context.Background(), "alice")
	require.NoError(t, err)
	first.Bio = "mutated by caller"

	second, err := c.GetUserProfile(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "old bio", second.Bio)
	assert.Equal(t, 1, b.callCount("getUserProfile"))
}

func TestConcurrentProfileReadsShareOneRequest(t *testing.T) {
	b := newFakeBackend(t)
	gate := make(chan struct{})
	b.mu.Lock()
	b.profileGate = gate
	b.mu.Unlock()
	c, mgr, _ := newTestClient(t, b)
	mgr.RestoreSession(aliceSession())

	var wg sync.WaitGroup
	results := make([]*models.Profile, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := c.GetUserProfile(context.Background(), "alice")
			assert.NoError(t, err)
			results[i] = p
		}(i)
	}

	require.Eventually(t, func() bool { return b.callCount("getUserProfile") == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, 1, b.callCount("getUserProfile"))
	require.NotNil(t, results[0])
	require.NotNil(t, results[1])
	assert.Equal(t, *results[0], *results[1])
}

func TestUpdateProfileInvalidatesProfile(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend(t)
	c, mgr, _ := newTestClient(t, b)
	mgr.RestoreSession(aliceSession())

	before, err := c.GetUserProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "old bio", before.Bio)

	require.NoError(t, c.UpdateProfile(ctx, models.ProfileUpdate{
		Nom: "Alice", Prenom: "Pleasance", Bio: "new bio",
	}))

	after, err := c.GetUserProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "new bio", after.Bio)
	assert.Equal(t, "Alice Pleasance", after.DisplayName())
	assert.Equal(t, 2, b.callCount("getUserProfile"))
}

func TestUpdateProfileMultipart(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend(t)
	c, mgr, _ := newTestClient(t, b)
	mgr.RestoreSession(aliceSession())

	require.NoError(t, c.UpdateProfile(ctx, models.ProfileUpdate{Bio: "text only"}))
	ct := b.header("updateProfile").Get("Content-Type")
	assert.True(t, strings.HasPrefix(ct, "multipart/form-data; boundary="), ct)
	assert.Equal(t, "Bearer T1", b.header("updateProfile").Get("Authorization"))
	b.mu.Lock()
	assert.Equal(t, "alice", b.formFields["updateProfile"]["username"])
	assert.Empty(t, b.formFiles["updateProfile"], "no picture part without an upload")
	b.mu.Unlock()

	upload := &models.Upload{Name: "me.png", ContentType: "image/png", Size: 4, Body: strings.NewReader("data")}
	require.NoError(t, c.UpdateProfile(ctx, models.ProfileUpdate{Bio: "with picture", ProfilePicture: upload}))
	b.mu.Lock()
	assert.Equal(t, []string{"profile_picture"}, b.formFiles["updateProfile"])
	b.mu.Unlock()

	p, err := c.GetUserProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, b.srv.URL+"/media/profile_pics/me.png", p.ProfilePicture)
}

func TestUpdateProfileLocalChecks(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend(t)
	c, mgr, _ := newTestClient(t, b, WithMaxUploadBytes(8))

	err := c.UpdateProfile(ctx, models.ProfileUpdate{Bio: "x"})
	assert.ErrorIs(t, err, apierr.ErrUnauthorized)

	mgr.RestoreSession(aliceSession())
	big := &models.Upload{Name: "huge.jpg", Size: 9, Body: strings.NewReader("123456789")}
	err = c.UpdateProfile(ctx, models.ProfileUpdate{Bio: "x", ProfilePicture: big})
	assert.ErrorIs(t, err, apierr.ErrPayloadTooLarge)

	assert.Zero(t, b.callCount("updateProfile"))
}

func TestGetUserProfileNotFound(t *testing.T) {
	b := newFakeBackend(t)
	c, mgr, _ := newTestClient(t, b)
	mgr.RestoreSession(aliceSession())

	_, err := c.GetUserProfile(context.Background(), "nobody")
	assert.ErrorIs(t, err, apierr.ErrNotFound)
	assert.Equal(t, "Not found.", apierr.Message(err))

	_, err = c.GetUserProfile(context.Background(), " ")
	assert.ErrorIs(t, err, apierr.ErrValidation)
}

func TestWatchUserProfileSeesUpdate(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend(t)
	c, mgr, _ := newTestClient(t, b)
	mgr.RestoreSession(aliceSession())

	var mu sync.Mutex
	var last ProfileState
	sub := c.WatchUserProfile("alice", func(s ProfileState) {
		mu.Lock()
		last = s
		mu.Unlock()
	})
	defer sub.Close()

	bio := func() string {
		mu.Lock()
		defer mu.Unlock()
		if last.Status != cache.StatusSuccess || last.Profile == nil {
			return ""
		}
		return last.Profile.Bio
	}
	require.Eventually(t, func() bool { return bio() == "old bio" }, time.Second, time.Millisecond)

	require.NoError(t, c.UpdateProfile(ctx, models.ProfileUpdate{Bio: "pushed"}))
	require.Eventually(t, func() bool { return bio() == "pushed" }, time.Second, time.Millisecond)
}

func TestRefetchUserProfile(t *testing.T) {
	b := newFakeBackend(t)
	c, mgr, _ := newTestClient(t, b)
	mgr.RestoreSession(aliceSession())

	_, err := c.GetUserProfile(context.Background(), "alice")
	require.NoError(t, err)
	_, err = c.RefetchUserProfile(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, b.callCount("getUserProfile"))
}
