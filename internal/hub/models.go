package hub

import (
	"fmt"
	"time"
)

// Uploader is a booru account whose posts the bot may republish.
type Uploader struct {
	Name         string
	OverrideName string
	InWhitelist  bool
	InBlacklist  bool
}

// WeiboName is the display name used when crediting the uploader.
func (u *Uploader) WeiboName() string {
	if u.OverrideName != "" {
		return u.OverrideName
	}
	return u.Name
}

var animatedMediaExts = map[string]bool{"gif": true, "mp4": true, "webm": true}

// Post mirrors one booru post.
type Post struct {
	ID             int64
	Source         string
	FileSize       int64
	IsShown        bool
	IsPending      bool
	MD5            string
	Ext            string
	CreatedAt      time.Time
	Score          int64
	Rating         string
	SampleURL      string
	SampleFileSize int64
	UploaderName   string
	Posted         bool
	WeiboID        string
	UpdateTime     time.Time
	Tags           []string
}

const previewExt = "jpg"

// MediaURL is the full-size media location under the booru's data root.
func (p *Post) MediaURL(baseURL string) string {
	return fmt.Sprintf("%s/data/%s.%s", baseURL, p.MD5, p.Ext)
}

// PreviewURL is the still preview location.
func (p *Post) PreviewURL(baseURL string) string {
	return fmt.Sprintf("%s/data/preview/%s.%s", baseURL, p.MD5, previewExt)
}

// PageURL is the post's public page.
func (p *Post) PageURL(baseURL string) string {
	return fmt.Sprintf("%s/post/show/%d", baseURL, p.ID)
}

// FileName is the media file's local name.
func (p *Post) FileName() string {
	return fmt.Sprintf("%s.%s", p.MD5, p.Ext)
}

// WeiboFileName is the name of the file actually posted: animated media
// is transcoded to gif first.
func (p *Post) WeiboFileName() string {
	if animatedMediaExts[p.Ext] {
		return fmt.Sprintf("%s.gif", p.MD5)
	}
	return p.FileName()
}

// IsAnimated reports whether the post's media needs transcoding before
// upload.
func (p *Post) IsAnimated() bool {
	return animatedMediaExts[p.Ext]
}

// Weibo records one published status.
type Weibo struct {
	WeiboID    string
	ImgURL     string
	CreateTime time.Time
}

// Snapshot is one recorded revision of a tag's detail.
type Snapshot struct {
	ID         int64
	TagName    string
	Hash       string
	Note       string
	Editor     string
	CreateTime time.Time
	UpdateTime time.Time
}

// EditorName renders the editor for display, substituting the system
// account for revisions made by background tasks.
func (s *Snapshot) EditorName() string {
	if s.Editor == "" {
		return "System"
	}
	return s.Editor
}
