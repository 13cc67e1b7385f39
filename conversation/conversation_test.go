package conversation

import (
	"strings"
	"testing"
	"time"

	"hbdbot/pkg/hbd"
)

var jst = time.FixedZone("JST", 9*60*60)

func newTestDispatcher() *Dispatcher {
	return New(Options{
		Location: jst,
		Pick:     func(int) int { return 0 },
		Admin:    "owner",
		Version:  "test",
		Reaction: ":happy_birth_day__i:",
	})
}

func TestRespondCommands(t *testing.T) {
	now := time.Date(2024, 6, 15, 10, 0, 0, 0, jst)
	d := newTestDispatcher()

	alice := hbd.User{Username: "alice", Name: "Alice", RawBirthday: "1990-06-15", Birthday: hbd.MonthDay{Month: time.June, Day: 15}}
	owner := hbd.User{Username: "owner", Name: "Owner"}
	remoteOwner := hbd.User{Username: "owner", Host: "other.example", Software: "misskey"}

	tests := []struct {
		name     string
		kind     hbd.NotificationKind
		text     string
		sender   hbd.User
		wantKind ActionKind
		wantOK   bool
	}{
		{name: "ping", kind: hbd.KindMention, text: "@hbd /ping", sender: alice, wantKind: ActionPong, wantOK: true},
		{name: "ping wins over help", kind: hbd.KindMention, text: "/help /ping", sender: alice, wantKind: ActionPong, wantOK: true},
		{name: "shutdown from admin", kind: hbd.KindMention, text: "/kora", sender: owner, wantKind: ActionShutdown, wantOK: true},
		{name: "shutdown from stranger", kind: hbd.KindMention, text: "/kora", sender: alice, wantKind: ActionNone, wantOK: false},
		{name: "shutdown from remote namesake", kind: hbd.KindReply, text: "/kora", sender: remoteOwner, wantKind: ActionNone, wantOK: false},
		{name: "stranger shutdown falls through", kind: hbd.KindMention, text: "/kora /help", sender: alice, wantKind: ActionHelp, wantOK: true},
		{name: "celebrate", kind: hbd.KindMention, text: "祝って！", sender: alice, wantKind: ActionCelebrate, wantOK: true},
		{name: "celebrate command", kind: hbd.KindReply, text: "@hbd /Celebrate", sender: alice, wantKind: ActionCelebrate, wantOK: true},
		{name: "celebrate needs the slash", kind: hbd.KindReply, text: "please celebrate me", sender: alice, wantKind: ActionNone, wantOK: false},
		{name: "register", kind: hbd.KindMention, text: "登録して", sender: alice, wantKind: ActionRegister, wantOK: true},
		{name: "register command", kind: hbd.KindMention, text: "@hbd /register!", sender: alice, wantKind: ActionRegister, wantOK: true},
		{name: "unregister is not register", kind: hbd.KindMention, text: "@hbd please unregister me", sender: alice, wantKind: ActionNone, wantOK: false},
		{name: "register question", kind: hbd.KindMention, text: "how do I register?", sender: alice, wantKind: ActionNone, wantOK: false},
		{name: "slash command inside a word", kind: hbd.KindMention, text: "@hbd /registered", sender: alice, wantKind: ActionNone, wantOK: false},
		{name: "ping with punctuation", kind: hbd.KindMention, text: "/ping！", sender: alice, wantKind: ActionPong, wantOK: true},
		{name: "help", kind: hbd.KindReply, text: "/help", sender: alice, wantKind: ActionHelp, wantOK: true},
		{name: "no match", kind: hbd.KindMention, text: "hello there", sender: alice, wantKind: ActionNone, wantOK: false},
		{name: "follow ignores text", kind: hbd.KindFollow, text: "/ping", sender: alice, wantKind: ActionGreeting, wantOK: true},
		{name: "renote ignored", kind: hbd.KindRenote, text: "/ping", sender: alice, wantKind: ActionNone, wantOK: false},
		{name: "quote ignored", kind: hbd.KindQuote, text: "/ping", sender: alice, wantKind: ActionNone, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := d.Respond(tt.kind, tt.text, tt.sender, now)
			if ok != tt.wantOK {
				t.Fatalf("Respond() ok = %v, want %v", ok, tt.wantOK)
			}
			if got.Kind != tt.wantKind {
				t.Errorf("Respond() kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if ok && got.Text == "" {
				t.Error("Respond() returned an empty reply")
			}
		})
	}
}

func TestRespondSubscription(t *testing.T) {
	now := time.Date(2024, 6, 15, 10, 0, 0, 0, jst)
	d := newTestDispatcher()

	withBirthday := hbd.User{Username: "bob", Host: "remote.example", RawBirthday: "2001-03-04", Birthday: hbd.MonthDay{Month: time.March, Day: 4}}
	without := hbd.User{Username: "carol"}

	tests := []struct {
		name          string
		kind          hbd.NotificationKind
		text          string
		sender        hbd.User
		wantSubscribe bool
		wantBirthday  string
		wantContains  string
	}{
		{
			name:          "follow with birthday",
			kind:          hbd.KindFollow,
			sender:        withBirthday,
			wantSubscribe: true,
			wantBirthday:  "2001-03-04",
			wantContains:  "フォローありがとう",
		},
		{
			name:         "follow without birthday",
			kind:         hbd.KindFollow,
			sender:       without,
			wantContains: "まだプロフィールに誕生日を設定してない",
		},
		{
			name:          "register with birthday",
			kind:          hbd.KindMention,
			text:          "登録して",
			sender:        withBirthday,
			wantSubscribe: true,
			wantBirthday:  "2001-03-04",
			wantContains:  "3月4日",
		},
		{
			name:         "register without birthday apologizes",
			kind:         hbd.KindMention,
			text:         "登録して",
			sender:       without,
			wantContains: "ごめんね",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := d.Respond(tt.kind, tt.text, tt.sender, now)
			if !ok {
				t.Fatal("Respond() ok = false, want true")
			}
			if got.Subscribe != tt.wantSubscribe {
				t.Errorf("Subscribe = %v, want %v", got.Subscribe, tt.wantSubscribe)
			}
			if got.Birthday != tt.wantBirthday {
				t.Errorf("Birthday = %q, want %q", got.Birthday, tt.wantBirthday)
			}
			if !strings.Contains(got.Text, tt.wantContains) {
				t.Errorf("Text = %q, want it to contain %q", got.Text, tt.wantContains)
			}
			if !strings.HasPrefix(got.Text, "@"+tt.sender.Handle()+" \n") {
				t.Errorf("Text = %q, want greeting prefix for %s", got.Text, tt.sender.Handle())
			}
		})
	}
}

func TestSubscribeFallsBackToMonthDay(t *testing.T) {
	d := newTestDispatcher()
	u := hbd.User{Username: "dave", Birthday: hbd.MonthDay{Month: time.December, Day: 1}}

	got, _ := d.Respond(hbd.KindFollow, "", u, time.Date(2024, 6, 15, 0, 0, 0, 0, jst))
	if got.Birthday != "12-01" {
		t.Errorf("Birthday = %q, want %q", got.Birthday, "12-01")
	}
}

func TestBirthdayMessageByOffset(t *testing.T) {
	today := time.Date(2024, 6, 15, 12, 0, 0, 0, jst)
	d := newTestDispatcher()

	tests := []struct {
		name     string
		birthday hbd.MonthDay
		want     string
	}{
		{name: "today", birthday: hbd.MonthDay{Month: time.June, Day: 15}, want: "今日はあなたの誕生日だね"},
		{name: "yesterday", birthday: hbd.MonthDay{Month: time.June, Day: 14}, want: "昨日があなたの誕生日だった"},
		{name: "two days ago", birthday: hbd.MonthDay{Month: time.June, Day: 13}, want: "一昨日があなたの誕生日だった"},
		{name: "tomorrow", birthday: hbd.MonthDay{Month: time.June, Day: 16}, want: "明日だね"},
		{name: "other", birthday: hbd.MonthDay{Month: time.October, Day: 2}, want: "10月2日だね"},
		{name: "none", want: "まだプロフィールに誕生日を設定してない"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.birthdayMessage(hbd.User{Username: "u", Birthday: tt.birthday}, today)
			if !strings.Contains(got, tt.want) {
				t.Errorf("birthdayMessage() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestCongratulate(t *testing.T) {
	now := time.Date(2024, 6, 15, 0, 5, 0, 0, jst)
	picks := 0
	d := New(Options{
		Location: jst,
		Pick: func(n int) int {
			picks++
			return n - 1
		},
	})

	birthday := hbd.User{Username: "eve", Name: "Eve", Birthday: hbd.MonthDay{Month: time.June, Day: 15}}
	got := d.Congratulate(birthday, now)

	if !strings.Contains(got, BirthdayEmoji) {
		t.Errorf("Congratulate() = %q, missing %s", got, BirthdayEmoji)
	}
	if !strings.Contains(got, congratsOpeners[len(congratsOpeners)-1]) {
		t.Errorf("Congratulate() = %q, want last opener", got)
	}
	if !strings.Contains(got, congratsToday[len(congratsToday)-1]) {
		t.Errorf("Congratulate() = %q, want birthday wish", got)
	}
	if picks != 2 {
		t.Errorf("pick called %d times, want 2", picks)
	}

	notToday := hbd.User{Username: "eve", Birthday: hbd.MonthDay{Month: time.January, Day: 1}}
	if got := d.Congratulate(notToday, now); !strings.Contains(got, congratsYear[len(congratsYear)-1]) {
		t.Errorf("Congratulate() = %q, want year wish", got)
	}
}

func TestShutdownText(t *testing.T) {
	d := newTestDispatcher()
	a, ok := d.Respond(hbd.KindMention, "/kora", hbd.User{Username: "owner"}, time.Now())
	if !ok || !strings.HasPrefix(a.Text, "@owner ") {
		t.Errorf("shutdown reply = %q, want mention of admin", a.Text)
	}
}

func TestActionKindString(t *testing.T) {
	if ActionPong.String() != "ping" || ActionNone.String() != "none" {
		t.Errorf("unexpected names: %s, %s", ActionPong, ActionNone)
	}
}
