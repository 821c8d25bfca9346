package weibo

import (
	"fmt"
	"strconv"
	"strings"

	"boorubot/internal/hub"
	"boorubot/internal/schema"
)

// presumedTag flips the artist credit label: the attribution is a
// community guess, not confirmed staff information.
const presumedTag = "presumed"

const (
	labelArtist   = "原画"
	labelPresumed = "推测原画"
)

// Caption synthesizes the status text for one post from its tags and
// uploader. Sections with nothing to say are omitted entirely.
func Caption(post *hub.Post, tags []*hub.Tag, uploader *hub.Uploader, booruBase string) string {
	var copyrights, artists, others []string
	presumed := false
	for _, tag := range tags {
		if tag.Name == presumedTag {
			presumed = true
			continue
		}
		name := tag.WeiboName()
		switch tag.Type {
		case schema.TagCopyright:
			copyrights = append(copyrights, name)
		case schema.TagArtist:
			artists = append(artists, name)
		default:
			others = append(others, name)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "ID：%d；", post.ID)
	if len(copyrights) > 0 {
		fmt.Fprintf(&b, "作品：%s；", strings.Join(copyrights, "，"))
	}
	if post.Source != "" {
		fmt.Fprintf(&b, "来源：%s；", post.Source)
	}
	if len(artists) > 0 {
		label := labelArtist
		if presumed {
			label = labelPresumed
		}
		fmt.Fprintf(&b, "%s：%s；", label, strings.Join(artists, "，"))
	}
	if len(others) > 0 {
		fmt.Fprintf(&b, "Tags：%s；", strings.Join(others, "，"))
	}
	if uploader != nil && uploader.WeiboName() != "" {
		fmt.Fprintf(&b, "上传者：%s；", uploader.WeiboName())
	}
	b.WriteString(post.PageURL(booruBase))
	b.WriteString(" ")
	return b.String()
}

const base62Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Mid converts a numeric status id into the short id used in public
// status URLs: the decimal id is split into 7-digit groups from the
// right and each group base62-encoded with zero padding to 4 chars.
func Mid(weiboID string) string {
	var mid string
	for i := len(weiboID); i > 0; i -= 7 {
		start := i - 7
		if start < 0 {
			start = 0
		}
		n, err := strconv.ParseInt(weiboID[start:i], 10, 64)
		if err != nil {
			return ""
		}
		mid = encode62(n, 4) + mid
	}
	return strings.TrimLeft(mid, "0")
}

// StatusURL is the public page of a published status.
func StatusURL(uid, weiboID string) string {
	return fmt.Sprintf("https://weibo.com/%s/%s", uid, Mid(weiboID))
}

func encode62(n int64, minLen int) string {
	base := int64(len(base62Alphabet))
	var digits []byte
	for n > 0 {
		digits = append(digits, base62Alphabet[n%base])
		n /= base
	}
	if len(digits) == 0 {
		digits = append(digits, base62Alphabet[0])
	}
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	for len(digits) < minLen {
		digits = append([]byte{base62Alphabet[0]}, digits...)
	}
	return string(digits)
}
