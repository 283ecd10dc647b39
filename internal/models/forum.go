package models

// ForumPostBundle is the JSON-only shape demanded by the forum post
// generation prompt.
type ForumPostBundle struct {
	RelationTag string      `json:"relation_tag"`
	Posts       []ForumPost `json:"posts"`
}

// ForumPost is one generated post with its comment section.
type ForumPost struct {
	AuthorType       string         `json:"author_type"`
	PostContent      string         `json:"post_content"`
	ImageDescription string         `json:"image_description,omitempty"`
	Comments         []ForumComment `json:"comments"`
}

// ForumComment is one generated comment under a post.
type ForumComment struct {
	CommenterName  string `json:"commenter_name"`
	CommenterType  string `json:"commenter_type"`
	CommentContent string `json:"comment_content"`
}

// MomentCommentBundle is the JSON-only shape demanded by the moment
// comment generation prompt.
type MomentCommentBundle struct {
	Comments []MomentComment `json:"comments"`
}

// MomentComment is one generated comment under a moment.
type MomentComment struct {
	Author  string `json:"author"`
	Content string `json:"content"`
}
