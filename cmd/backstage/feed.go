// ABOUTME: CLI commands for the explore feed.
// ABOUTME: Provides feed listing with an optional live watch mode, and post creation.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389-research/backstage/internal/api"
	"github.com/2389-research/backstage/internal/apierr"
	"github.com/2389-research/backstage/internal/cache"
	"github.com/2389-research/backstage/internal/media"
	"github.com/2389-research/backstage/internal/metrics"
	"github.com/2389-research/backstage/internal/models"
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Read the explore feed",
	Long:  "List posts from the explore feed. With --watch, keep refreshing until interrupted.",
	RunE:  runFeed,
}

var postCmd = &cobra.Command{
	Use:   "post [content]",
	Short: "Create a post",
	Long:  "Publish a post with text, an image, or both.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPost,
}

// Flags
var (
	feedLimit    int
	feedRefresh  bool
	feedWatch    bool
	feedInterval time.Duration
	postImage    string
)

func init() {
	rootCmd.AddCommand(feedCmd)
	rootCmd.AddCommand(postCmd)

	feedCmd.Flags().IntVar(&feedLimit, "limit", 10, "Maximum number of posts to show")
	feedCmd.Flags().BoolVar(&feedRefresh, "refresh", false, "Bypass the cache")
	feedCmd.Flags().BoolVar(&feedWatch, "watch", false, "Keep the feed open and print updates")
	feedCmd.Flags().DurationVar(&feedInterval, "interval", 30*time.Second, "Refresh interval in watch mode")

	postCmd.Flags().StringVar(&postImage, "image", "", "Path to an image to attach")
}

func runFeed(cmd *cobra.Command, args []string) error {
	if feedWatch {
		return watchFeed(cmd.Context())
	}

	get := globalClient.GetFeed
	if feedRefresh {
		get = globalClient.RefetchFeed
	}
	posts, err := get(cmd.Context())
	if err != nil {
		return userError(err)
	}
	printPosts(posts)
	return nil
}

func watchFeed(parent context.Context) error {
	if feedInterval <= 0 {
		return fmt.Errorf("--interval must be positive")
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	stopMetrics := metrics.StartServer(globalConfig.Metrics.Addr)
	defer stopMetrics()

	failed := make(chan error, 1)
	sub := globalClient.WatchFeed(func(s api.FeedState) {
		switch s.Status {
		case cache.StatusSuccess:
			fmt.Printf("\n=== %s ===\n", time.Now().Format("15:04:05"))
			printPosts(s.Posts)
		case cache.StatusError:
			if apierr.KindOf(s.Err) == apierr.KindUnauthorized {
				select {
				case failed <- s.Err:
				default:
				}
				return
			}
			fmt.Fprintf(os.Stderr, "Warning: %s\n", apierr.Message(s.Err))
		}
	})
	defer sub.Close()

	ticker := time.NewTicker(feedInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-failed:
			return userError(err)
		case <-ticker.C:
			// Errors reach the subscriber.
			_, _ = globalClient.RefetchFeed(ctx)
		}
	}
}

func runPost(cmd *cobra.Command, args []string) error {
	post := models.NewPost{}
	if len(args) == 1 {
		post.Content = args[0]
	}
	if postImage != "" {
		upload, f, err := media.OpenUpload(postImage)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		post.Image = upload
	}

	created, err := globalClient.CreatePost(cmd.Context(), post)
	if err != nil {
		return userError(err)
	}
	if created == nil {
		fmt.Println("Post created.")
		return nil
	}
	fmt.Printf("Post created (ID: %d)\n", created.ID)
	return nil
}

func printPosts(posts []models.Post) {
	if len(posts) == 0 {
		fmt.Println("No posts found.")
		return
	}
	if feedLimit > 0 && len(posts) > feedLimit {
		posts = posts[:feedLimit]
	}
	for _, p := range posts {
		fmt.Printf("--- @%s", p.Username)
		if !p.CreatedAt.IsZero() {
			fmt.Printf(" [%s]", p.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		}
		fmt.Printf(" #%d  ♥ %d  💬 %d\n", p.ID, p.LikesCount, p.CommentsCount)
		if p.Content != "" {
			fmt.Println(p.Content)
		}
		if p.Media != nil && p.Media.URL != "" {
			fmt.Printf("[%s] %s\n", p.Media.Type, p.Media.URL)
		}
		fmt.Println()
	}
}
