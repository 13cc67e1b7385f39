// Package hbd contains the core domain types for the birthday bot.
package hbd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Errors shared by the feed/action collaborators and their callers.
var (
	// ErrTimeout marks a network call that did not complete in time.
	// Pollers treat it as an empty result.
	ErrTimeout = errors.New("request timed out")
	// ErrAlreadyReacted is returned when the server rejects a reaction the bot already added.
	ErrAlreadyReacted = errors.New("reaction already present")
	// ErrRateLimited is returned when the server itself rejects a call for rate limiting.
	ErrRateLimited = errors.New("rate limited by server")
)

// MonthDay is a birthday without a year. The zero value means "no birthday on record".
type MonthDay struct {
	Month time.Month
	Day   int
}

// IsZero reports whether no birthday is on record.
func (md MonthDay) IsZero() bool {
	return md.Month == 0 || md.Day == 0
}

func (md MonthDay) String() string {
	if md.IsZero() {
		return ""
	}
	return fmt.Sprintf("%02d-%02d", int(md.Month), md.Day)
}

// ParseBirthday parses a profile birthday. It accepts "YYYY-MM-DD" as published
// by Misskey profiles and the year-less "MM-DD". An empty string yields the zero
// MonthDay and no error.
func ParseBirthday(s string) (MonthDay, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return MonthDay{}, nil
	}

	parts := strings.Split(s, "-")
	if len(parts) == 3 {
		parts = parts[1:]
	}
	if len(parts) != 2 {
		return MonthDay{}, fmt.Errorf("parse birthday %q: unexpected format", s)
	}
	month, err := strconv.Atoi(parts[0])
	if err != nil {
		return MonthDay{}, fmt.Errorf("parse birthday %q: %w", s, err)
	}
	day, err := strconv.Atoi(parts[1])
	if err != nil {
		return MonthDay{}, fmt.Errorf("parse birthday %q: %w", s, err)
	}

	if month < 1 || month > 12 {
		return MonthDay{}, fmt.Errorf("parse birthday %q: month out of range", s)
	}
	// 2000 is a leap year, so Feb 29 is accepted.
	if day < 1 || day > time.Date(2000, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day() {
		return MonthDay{}, fmt.Errorf("parse birthday %q: day out of range", s)
	}

	return MonthDay{Month: time.Month(month), Day: day}, nil
}

// User is a Misskey account as seen by the bot.
type User struct {
	ID          string
	Username    string
	Host        string // Empty for users on the bot's own instance
	Name        string // Display alias
	RawBirthday string // Birthday as published on the profile
	Birthday    MonthDay
	Software    string // Remote instance software name, empty for local users
}

// Handle returns username or username@host. It is the identity key of every record.
func (u User) Handle() string {
	if u.Host != "" {
		return u.Username + "@" + u.Host
	}
	return u.Username
}

// IsRemote reports whether the user lives on another instance.
func (u User) IsRemote() bool {
	return u.Host != ""
}

// Supported reports whether the bot can read a birthday for this user.
// Only Misskey federates the profile birthday.
func (u User) Supported() bool {
	return !u.IsRemote() || u.Software == "" || strings.EqualFold(u.Software, "misskey")
}

// DisplayName returns the alias, falling back to the username.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

// File is a drive file attached to a note.
type File struct {
	ID        string
	Sensitive bool
}

// Note is a post on the timeline.
type Note struct {
	CreatedAt time.Time
	CW        *string // Content warning; non-nil even when empty means a CW is set
	Renote    *Note   // Reshared note, if any
	Reactions map[string]int
	User      User
	ID        string
	Text      string
	Files     []File
}

// ItemID implements the poller watermark contract.
func (n *Note) ItemID() string {
	return n.ID
}

// IsPureRenote reports whether the note only reshares another note.
func (n *Note) IsPureRenote() bool {
	return n.Renote != nil && n.Text == "" && n.CW == nil && len(n.Files) == 0
}

// HasCW reports whether the note hides its body behind a content warning.
func (n *Note) HasCW() bool {
	return n.CW != nil
}

// HasSensitiveMedia reports whether any attached file is marked sensitive.
func (n *Note) HasSensitiveMedia() bool {
	for _, f := range n.Files {
		if f.Sensitive {
			return true
		}
	}
	return false
}

// NotificationKind is the closed set of notification variants the bot polls.
type NotificationKind int

const (
	KindUnknown NotificationKind = iota
	KindMention
	KindReply
	KindFollow
	KindRenote
	KindQuote
)

var kindNames = map[NotificationKind]string{
	KindMention: "mention",
	KindReply:   "reply",
	KindFollow:  "follow",
	KindRenote:  "renote",
	KindQuote:   "quote",
}

func (k NotificationKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseKind maps a wire notification type to its kind.
func ParseKind(s string) NotificationKind {
	for k, name := range kindNames {
		if name == s {
			return k
		}
	}
	return KindUnknown
}

// PolledKinds are the notification kinds requested from the server.
var PolledKinds = []NotificationKind{KindMention, KindReply, KindFollow, KindRenote, KindQuote}

// Notification is an entry of the bot's notification stream.
type Notification struct {
	CreatedAt time.Time
	User      *User // Nil for system notifications
	Note      *Note // Set for mention, reply, renote and quote
	ID        string
	Kind      NotificationKind
}

// ItemID implements the poller watermark contract.
func (n *Notification) ItemID() string {
	return n.ID
}

// Text returns the text of the attached note, if any.
func (n *Notification) Text() string {
	if n.Note == nil {
		return ""
	}
	return n.Note.Text
}
