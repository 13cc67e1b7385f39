// Package celebrate decides whether a post should be reshared as a birthday celebration.
package celebrate

import (
	"time"

	"hbdbot/calendar"
	"hbdbot/pkg/hbd"
)

// PurgeAge is how long a celebration entry survives the daily rollover.
const PurgeAge = 25 * time.Hour

// Rule names the check that settled a decision.
type Rule string

const (
	RuleBirthday     Rule = "birthday"       // Author's birthday is today, never celebrated
	RuleReactions    Rule = "reactions"      // Enough target reactions on a post from today
	RuleNoReactions  Rule = "below_threshold"
	RuleStale        Rule = "not_today"
	RuleAlreadyToday Rule = "already_celebrated"
	RuleCW           Rule = "content_warning"
	RuleSensitive    Rule = "sensitive_media"
)

// Decision is the outcome of an eligibility check.
type Decision struct {
	Rule    Rule
	Reshare bool
}

// Engine holds the eligibility settings.
type Engine struct {
	Location       *time.Location // Civil calendar used for "today"
	TargetReaction string
	Threshold      int
}

// ShouldReshare reports whether note by user should be reshared now.
func (e Engine) ShouldReshare(note *hbd.Note, user hbd.User, record *Record, now time.Time) bool {
	return e.Decide(note, user, record, now).Reshare
}

// Decide evaluates the eligibility rules in order; the first match wins.
//
// A user whose birthday is today and who has no entry is always eligible.
// Otherwise the post needs at least Threshold target reactions, must have
// been created today, the user must not have been celebrated today, and the
// post must carry neither a content warning nor sensitive media.
func (e Engine) Decide(note *hbd.Note, user hbd.User, record *Record, now time.Time) Decision {
	loc := e.location()
	today := now.In(loc)

	if calendar.IsToday(today, user.Birthday) && !record.Has(user.Handle()) {
		return Decision{Rule: RuleBirthday, Reshare: true}
	}

	count, ok := note.Reactions[e.TargetReaction]
	if !ok || count < e.Threshold {
		return Decision{Rule: RuleNoReactions}
	}
	if !calendar.SameDay(note.CreatedAt, now, loc) {
		return Decision{Rule: RuleStale}
	}
	if record.CelebratedOn(user.Handle(), now, loc) {
		return Decision{Rule: RuleAlreadyToday}
	}
	if note.HasCW() {
		return Decision{Rule: RuleCW}
	}
	if note.HasSensitiveMedia() {
		return Decision{Rule: RuleSensitive}
	}
	return Decision{Rule: RuleReactions, Reshare: true}
}

func (e Engine) location() *time.Location {
	if e.Location == nil {
		return time.UTC
	}
	return e.Location
}
