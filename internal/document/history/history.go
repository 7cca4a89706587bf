// Package history turns raw version rows into display entries. Author
// attribution is best effort: it only knows the emails of current members.
package history

import (
	"docshare/internal/document/model"
)

const (
	UnknownAuthor = "unknown"

	idPrefixLen = 8
	previewLen  = 60
	ellipsis    = "…"
)

type Entry struct {
	model.Version
	Author  string `json:"creator_email"`
	Preview string `json:"preview"`
}

// Attribute pairs each version with a display author and a content preview.
// members may be nil when the member lookup failed; every author then falls
// back to the shortened id. A version written by someone who has since been
// removed also shows the shortened id, not the email they had at the time.
func Attribute(versions []model.Version, members []model.Member) []Entry {
	emails := make(map[string]string, len(members))
	for _, m := range members {
		emails[m.UserID] = m.Email
	}

	entries := make([]Entry, 0, len(versions))
	for _, v := range versions {
		entries = append(entries, Entry{
			Version: v,
			Author:  author(v.CreatedBy, emails),
			Preview: truncate(v.Content, previewLen),
		})
	}
	return entries
}

func author(createdBy *string, emails map[string]string) string {
	if createdBy == nil || *createdBy == "" {
		return UnknownAuthor
	}
	if email, ok := emails[*createdBy]; ok {
		return email
	}
	return truncate(*createdBy, idPrefixLen)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + ellipsis
}
