// Package conversation classifies inbound mentions and builds the bot's replies.
package conversation

import (
	"math/rand/v2"
	"slices"
	"strings"
	"time"
	"unicode"

	"hbdbot/pkg/hbd"
)

// ActionKind is the kind of response the bot should send.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionPong
	ActionShutdown
	ActionCelebrate
	ActionRegister
	ActionHelp
	ActionGreeting
)

var actionNames = map[ActionKind]string{
	ActionPong:      "ping",
	ActionShutdown:  "shutdown",
	ActionCelebrate: "celebrate",
	ActionRegister:  "register",
	ActionHelp:      "help",
	ActionGreeting:  "greeting",
}

func (k ActionKind) String() string {
	if s, ok := actionNames[k]; ok {
		return s
	}
	return "none"
}

// Action is a reply the bot should post.
type Action struct {
	Text      string
	Birthday  string // Raw birthday to store when Subscribe is set
	Kind      ActionKind
	Subscribe bool // Sender should be added to the subscriber record
}

// command is one entry of the ordered command table.
type command struct {
	kind     ActionKind
	triggers []string
}

// Order matters: the first command whose trigger appears in the text wins.
// Slash commands must stand as their own word; phrases match anywhere.
var commands = []command{
	{kind: ActionPong, triggers: []string{"/ping"}},
	{kind: ActionShutdown, triggers: []string{"/kora"}},
	{kind: ActionCelebrate, triggers: []string{"祝って", "/celebrate"}},
	{kind: ActionRegister, triggers: []string{"登録して", "/register"}},
	{kind: ActionHelp, triggers: []string{"/help"}},
}

// Options configures a dispatcher.
type Options struct {
	Location *time.Location  // Civil calendar for birthday offsets
	Pick     func(n int) int // Returns a value in [0, n); defaults to math/rand
	Admin    string          // Handle allowed to request shutdown
	Version  string          // Shown in the help text
	Reaction string          // Target reaction shown in the help text
}

// Dispatcher maps inbound notifications to replies. It keeps no state between calls.
type Dispatcher struct {
	loc      *time.Location
	pick     func(n int) int
	admin    string
	version  string
	reaction string
}

// New creates a dispatcher.
func New(opts Options) *Dispatcher {
	d := &Dispatcher{
		loc:      opts.Location,
		pick:     opts.Pick,
		admin:    opts.Admin,
		version:  opts.Version,
		reaction: opts.Reaction,
	}
	if d.loc == nil {
		d.loc = time.UTC
	}
	if d.pick == nil {
		d.pick = rand.IntN
	}
	return d
}

// Respond classifies a notification and returns the reply to send.
// Follow events always yield a greeting. Mentions and replies are matched
// against the command table; ok is false when nothing matches, in which
// case the caller reacts with a confused marker instead of replying.
// Other kinds never produce a reply.
func (d *Dispatcher) Respond(kind hbd.NotificationKind, text string, sender hbd.User, now time.Time) (Action, bool) {
	today := now.In(d.loc)

	switch kind {
	case hbd.KindFollow:
		a := Action{Kind: ActionGreeting, Text: d.followText(sender, today)}
		d.subscribe(&a, sender)
		return a, true
	case hbd.KindMention, hbd.KindReply:
	default:
		return Action{}, false
	}

	for _, c := range commands {
		if !matches(text, c.triggers) {
			continue
		}
		switch c.kind {
		case ActionPong:
			return Action{Kind: ActionPong, Text: pongText(sender)}, true
		case ActionShutdown:
			if d.admin == "" || sender.Handle() != d.admin {
				continue
			}
			return Action{Kind: ActionShutdown, Text: d.shutdownText()}, true
		case ActionCelebrate:
			return Action{Kind: ActionCelebrate, Text: d.celebrateText(sender, today)}, true
		case ActionRegister:
			a := Action{Kind: ActionRegister, Text: d.registerText(sender, today)}
			d.subscribe(&a, sender)
			return a, true
		case ActionHelp:
			return Action{Kind: ActionHelp, Text: d.helpText(sender)}, true
		}
	}
	return Action{}, false
}

// Congratulate builds the unsolicited greeting sent to a subscriber on their birthday.
func (d *Dispatcher) Congratulate(u hbd.User, now time.Time) string {
	return d.celebrateText(u, now.In(d.loc))
}

func (d *Dispatcher) subscribe(a *Action, u hbd.User) {
	if u.Birthday.IsZero() {
		return
	}
	a.Subscribe = true
	a.Birthday = u.RawBirthday
	if a.Birthday == "" {
		a.Birthday = u.Birthday.String()
	}
}

func (d *Dispatcher) pickOne(options []string) string {
	return options[d.pick(len(options))]
}

func matches(text string, triggers []string) bool {
	lower := strings.ToLower(text)
	words := strings.Fields(lower)
	for i, w := range words {
		words[i] = strings.TrimRightFunc(w, unicode.IsPunct)
	}

	for _, t := range triggers {
		if strings.HasPrefix(t, "/") {
			if slices.Contains(words, t) {
				return true
			}
			continue
		}
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}
