// ABOUTME: MCP tool implementations for profile and feed operations.
// ABOUTME: Registers get_profile, update_profile, read_feed, and create_post tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/2389-research/backstage/internal/media"
	"github.com/2389-research/backstage/internal/models"
)

func (s *Server) registerProfileTools() {
	s.addTool(&gomcp.Tool{
		Name:        "get_profile",
		Description: "Read a user's profile. Defaults to the logged-in user.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"username": {"type": "string", "description": "Profile to read (optional)."},
				"refresh": {"type": "boolean", "description": "Bypass the cache and fetch again."}
			}
		}`),
	}, s.handleGetProfile)

	s.addTool(&gomcp.Tool{
		Name:        "update_profile",
		Description: "Edit the logged-in user's profile. Omitted fields keep their current values.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"nom": {"type": "string", "description": "Last name (optional)."},
				"prenom": {"type": "string", "description": "First name (optional)."},
				"bio": {"type": "string", "description": "Bio text (optional). An empty string clears it."},
				"picture_path": {"type": "string", "description": "Local path of a new profile picture (optional)."}
			}
		}`),
	}, s.handleUpdateProfile)
}

func (s *Server) registerFeedTools() {
	s.addTool(&gomcp.Tool{
		Name:        "read_feed",
		Description: "Retrieve posts from the explore feed.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"limit": {"type": "number", "description": "Maximum number of posts to show (default 10)"},
				"refresh": {"type": "boolean", "description": "Bypass the cache and fetch again."}
			}
		}`),
	}, s.handleReadFeed)

	s.addTool(&gomcp.Tool{
		Name:        "create_post",
		Description: "Publish a post with text, an image, or both.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"content": {"type": "string", "description": "The content of the post."},
				"image_path": {"type": "string", "description": "Local path of an image to attach (optional)."}
			}
		}`),
	}, s.handleCreatePost)
}

func (s *Server) handleGetProfile(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	var args struct {
		Username string `json:"username"`
		Refresh  bool   `json:"refresh"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return toolError("invalid arguments: %v", err), nil
	}

	username := strings.TrimSpace(args.Username)
	if username == "" {
		username = s.client.Session().Session().Username
	}
	if username == "" {
		return toolError("not logged in - pass a username or use the login tool first"), nil
	}

	get := s.client.GetUserProfile
	if args.Refresh {
		get = s.client.RefetchUserProfile
	}
	profile, err := get(ctx, username)
	if err != nil {
		return apiError(err), nil
	}
	return toolText("%s", formatProfile(profile)), nil
}

func (s *Server) handleUpdateProfile(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	var args struct {
		Nom         *string `json:"nom"`
		Prenom      *string `json:"prenom"`
		Bio         *string `json:"bio"`
		PicturePath string  `json:"picture_path"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return toolError("invalid arguments: %v", err), nil
	}

	username := s.client.Session().Session().Username
	if username == "" {
		return toolError("not logged in - use the login tool first"), nil
	}

	var upd models.ProfileUpdate
	if args.PicturePath != "" {
		upload, f, err := media.OpenUpload(args.PicturePath)
		if err != nil {
			return toolError("%v", err), nil
		}
		defer func() { _ = f.Close() }()
		upd.ProfilePicture = upload
	}

	current, err := s.client.GetUserProfile(ctx, username)
	if err != nil {
		return apiError(err), nil
	}
	upd.Username = current.Username
	upd.Nom = current.Nom
	upd.Prenom = current.Prenom
	upd.Bio = current.Bio
	if args.Nom != nil {
		upd.Nom = *args.Nom
	}
	if args.Prenom != nil {
		upd.Prenom = *args.Prenom
	}
	if args.Bio != nil {
		upd.Bio = *args.Bio
	}

	if err := s.client.UpdateProfile(ctx, upd); err != nil {
		return apiError(err), nil
	}
	return toolText("Profile updated"), nil
}

func (s *Server) handleReadFeed(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	var args struct {
		Limit   int  `json:"limit"`
		Refresh bool `json:"refresh"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return toolError("invalid arguments: %v", err), nil
	}
	if args.Limit <= 0 {
		args.Limit = 10
	}

	get := s.client.GetFeed
	if args.Refresh {
		get = s.client.RefetchFeed
	}
	posts, err := get(ctx)
	if err != nil {
		return apiError(err), nil
	}

	if len(posts) == 0 {
		return toolText("No posts found."), nil
	}
	if len(posts) > args.Limit {
		posts = posts[:args.Limit]
	}

	var sb strings.Builder
	for i := range posts {
		writePost(&sb, &posts[i])
	}
	return toolText("%s", sb.String()), nil
}

func (s *Server) handleCreatePost(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	var args struct {
		Content   string `json:"content"`
		ImagePath string `json:"image_path"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return toolError("invalid arguments: %v", err), nil
	}

	post := models.NewPost{Content: args.Content}
	if args.ImagePath != "" {
		upload, f, err := media.OpenUpload(args.ImagePath)
		if err != nil {
			return toolError("%v", err), nil
		}
		defer func() { _ = f.Close() }()
		post.Image = upload
	}

	created, err := s.client.CreatePost(ctx, post)
	if err != nil {
		return apiError(err), nil
	}
	if created == nil {
		return toolText("Post created"), nil
	}
	return toolText("Post created (ID: %d)", created.ID), nil
}

func formatProfile(p *models.Profile) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "@%s", p.Username)
	if name := p.DisplayName(); name != "" {
		fmt.Fprintf(&sb, " - %s", name)
	}
	if p.UserType != "" {
		fmt.Fprintf(&sb, " [%s]", p.UserType)
	}
	sb.WriteString("\n")
	if p.Bio != "" {
		fmt.Fprintf(&sb, "%s\n", p.Bio)
	}
	if p.Location != "" {
		fmt.Fprintf(&sb, "Location: %s\n", p.Location)
	}
	fmt.Fprintf(&sb, "Followers: %d  Following: %d  Likes: %d\n", p.Followers, p.Following, p.Likes)
	fmt.Fprintf(&sb, "Picture: %s\n", p.ProfilePicture)
	fmt.Fprintf(&sb, "Posts: %d\n", len(p.Posts))
	for _, post := range p.Posts {
		fmt.Fprintf(&sb, "  #%d %s\n", post.ID, post.Image)
	}
	return sb.String()
}

func writePost(sb *strings.Builder, p *models.Post) {
	fmt.Fprintf(sb, "---\n@%s", p.Username)
	if !p.CreatedAt.IsZero() {
		fmt.Fprintf(sb, " [%s]", p.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(sb, " (#%d, %d likes, %d comments)\n", p.ID, p.LikesCount, p.CommentsCount)
	if p.Content != "" {
		fmt.Fprintf(sb, "%s\n", p.Content)
	}
	if p.Media != nil && p.Media.URL != "" {
		fmt.Fprintf(sb, "[%s] %s\n", p.Media.Type, p.Media.URL)
	}
}
