// ABOUTME: Feed operations: cached explore feed reads, watches, and post creation.
// ABOUTME: Creating a post invalidates the feed so the next read includes it.
package api

import (
	"context"
	"encoding/json"

	"github.com/2389-research/backstage/internal/apierr"
	"github.com/2389-research/backstage/internal/cache"
	"github.com/2389-research/backstage/internal/media"
	"github.com/2389-research/backstage/internal/models"
)

var feedKey = cache.Key{Endpoint: GetExploreFeed.Name}

// FeedState is one observed state of the watched feed.
type FeedState struct {
	Status cache.Status
	Posts  []models.Post
	Err    error
	Stale  bool
}

// feedPage accepts both a bare list and a paginated envelope.
type feedPage struct {
	Results []models.Post `json:"results"`
}

func (c *Client) feedFetcher() cache.Fetcher {
	return func(ctx context.Context) (any, error) {
		var raw json.RawMessage
		if err := c.do(ctx, GetExploreFeed, "", nil, &raw); err != nil {
			return nil, err
		}
		posts, err := decodeFeed(raw)
		if err != nil {
			return nil, apierr.Wrap(apierr.KindUnexpected, err, "invalid response from server")
		}
		for i := range posts {
			c.media.NormalizePost(&posts[i])
		}
		return posts, nil
	}
}

func decodeFeed(raw json.RawMessage) ([]models.Post, error) {
	if len(raw) == 0 {
		return []models.Post{}, nil
	}
	var posts []models.Post
	if err := json.Unmarshal(raw, &posts); err == nil {
		return posts, nil
	}
	var page feedPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, err
	}
	if page.Results == nil {
		page.Results = []models.Post{}
	}
	return page.Results, nil
}

// GetFeed returns the explore feed, served from cache when fresh.
func (c *Client) GetFeed(ctx context.Context) ([]models.Post, error) {
	v, err := c.query(ctx, GetExploreFeed, "", c.feedFetcher())
	if err != nil {
		return nil, err
	}
	return copyPosts(v), nil
}

// RefetchFeed reloads the feed regardless of freshness.
func (c *Client) RefetchFeed(ctx context.Context) ([]models.Post, error) {
	v, err := c.cache.Refetch(ctx, feedKey, GetExploreFeed.Provides, c.feedFetcher())
	if err != nil {
		return nil, err
	}
	return copyPosts(v), nil
}

// WatchFeed delivers every state change of the feed to fn until the
// subscription is closed.
func (c *Client) WatchFeed(fn func(FeedState)) *cache.Subscription {
	return c.cache.Subscribe(feedKey, GetExploreFeed.Provides, c.feedFetcher(), func(s cache.Snapshot) {
		fn(FeedState{Status: s.Status, Posts: copyPosts(s.Data), Err: s.Err, Stale: s.Stale})
	})
}

// CreatePost publishes a post with text, an image, or both. The returned
// post is nil when the backend does not echo it back.
func (c *Client) CreatePost(ctx context.Context, post models.NewPost) (*models.Post, error) {
	if err := c.requireSession(); err != nil {
		return nil, err
	}
	if !post.Valid() {
		return nil, apierr.New(apierr.KindValidation, "Please add some text or an image.")
	}
	if err := media.CheckSize(post.Image, c.maxUpload); err != nil {
		return nil, err
	}

	var f form
	f.set("content", post.Content)
	f.attach("image", post.Image)

	p, err := f.payload()
	if err != nil {
		return nil, apierr.Wrap(apierr.KindUnexpected, err, "failed to encode post")
	}
	var raw json.RawMessage
	if err := c.mutate(ctx, CreatePost, "", p, &raw); err != nil {
		return nil, err
	}

	var created models.Post
	if len(raw) == 0 || json.Unmarshal(raw, &created) != nil || created.ID == 0 {
		return nil, nil
	}
	c.media.NormalizePost(&created)
	return &created, nil
}

func copyPosts(v any) []models.Post {
	posts, ok := v.([]models.Post)
	if !ok {
		return nil
	}
	return append([]models.Post(nil), posts...)
}
