package misskey

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"hbdbot/pkg/hbd"
)

// Wire types mirror the JSON returned by the Misskey API. They are converted
// to the domain types in pkg/hbd before leaving this package.

type apiInstance struct {
	SoftwareName string `json:"softwareName"`
}

type apiUser struct {
	Instance *apiInstance `json:"instance"`
	Host     *string      `json:"host"`
	Name     *string      `json:"name"`
	Birthday *string      `json:"birthday"`
	ID       string       `json:"id"`
	Username string       `json:"username"`
}

type apiFile struct {
	ID          string `json:"id"`
	IsSensitive bool   `json:"isSensitive"`
}

type apiNote struct {
	CreatedAt time.Time      `json:"createdAt"`
	Text      *string        `json:"text"`
	CW        *string        `json:"cw"`
	Renote    *apiNote       `json:"renote"`
	Reactions map[string]int `json:"reactions"`
	ID        string         `json:"id"`
	User      apiUser        `json:"user"`
	Files     []apiFile      `json:"files"`
}

type apiNotification struct {
	CreatedAt time.Time `json:"createdAt"`
	User      *apiUser  `json:"user"`
	Note      *apiNote  `json:"note"`
	ID        string    `json:"id"`
	Type      string    `json:"type"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (u *apiUser) toUser() hbd.User {
	user := hbd.User{
		ID:          u.ID,
		Username:    u.Username,
		Host:        deref(u.Host),
		Name:        deref(u.Name),
		RawBirthday: deref(u.Birthday),
	}
	if u.Instance != nil {
		user.Software = u.Instance.SoftwareName
	}
	// An unreadable birthday is treated as none on record.
	if bd, err := hbd.ParseBirthday(user.RawBirthday); err == nil {
		user.Birthday = bd
	}
	return user
}

func (n *apiNote) toNote() *hbd.Note {
	note := &hbd.Note{
		ID:        n.ID,
		CreatedAt: n.CreatedAt,
		CW:        n.CW,
		User:      n.User.toUser(),
		Text:      deref(n.Text),
		Reactions: n.Reactions,
	}
	if note.Reactions == nil {
		note.Reactions = map[string]int{}
	}
	if note.User.IsRemote() && looksLikeHTML(note.Text) {
		note.Text = htmlToText(note.Text)
	}
	for _, f := range n.Files {
		note.Files = append(note.Files, hbd.File{ID: f.ID, Sensitive: f.IsSensitive})
	}
	if n.Renote != nil {
		note.Renote = n.Renote.toNote()
	}
	return note
}

func (n *apiNotification) toNotification() *hbd.Notification {
	out := &hbd.Notification{
		ID:        n.ID,
		CreatedAt: n.CreatedAt,
		Kind:      hbd.ParseKind(n.Type),
	}
	if n.User != nil {
		u := n.User.toUser()
		out.User = &u
	}
	if n.Note != nil {
		out.Note = n.Note.toNote()
	}
	return out
}

func looksLikeHTML(s string) bool {
	return strings.Contains(s, "<") && strings.Contains(s, ">") && strings.Contains(s, "</")
}

// htmlToText reduces federated HTML note bodies to plain text.
func htmlToText(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p").Each(func(i int, p *goquery.Selection) {
		if i > 0 {
			p.BeforeHtml("\n")
		}
	})
	return strings.TrimSpace(doc.Text())
}
