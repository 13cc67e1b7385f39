package conversation

import (
	"fmt"
	"strings"
	"time"

	"hbdbot/calendar"
	"hbdbot/pkg/hbd"
)

// BirthdayEmoji opens every congratulation.
const BirthdayEmoji = ":happy_birth_day__i:"

var (
	congratsOpeners = []string{
		"お誕生日おめでと！",
		"お誕生日おめでとう！",
		"お誕生日おめでとさん！",
		"たんおめだよ！",
	}
	congratsToday = []string{
		"楽しい一日になりますように！",
		"一日ハッピーに過ごせますように！",
		"特別な一日になりますように！",
		"一年に一度のお誕生日、いっぱい楽しんでね！",
	}
	congratsYear = []string{
		"元気にまた一年過ごせますように！",
		"ステキな年になりますように！",
		"望みが叶う一年になりますように！",
	}
)

// greet addresses the user: mention on the first line, display name on the second.
func greet(u hbd.User) string {
	return fmt.Sprintf("@%s \n%sさん　", u.Handle(), u.DisplayName())
}

func (d *Dispatcher) congrats(u hbd.User, today time.Time) string {
	var b strings.Builder
	b.WriteString(BirthdayEmoji)
	b.WriteString("\n")
	b.WriteString(d.pickOne(congratsOpeners))
	b.WriteString("\n")
	if calendar.IsToday(today, u.Birthday) {
		b.WriteString(d.pickOne(congratsToday))
	} else {
		b.WriteString(d.pickOne(congratsYear))
	}
	return b.String()
}

// birthdayMessage reflects how far the user's birthday is from today.
func (d *Dispatcher) birthdayMessage(u hbd.User, today time.Time) string {
	var b strings.Builder

	offset, ok := calendar.DayOffset(today, u.Birthday)
	switch {
	case !ok:
		b.WriteString("まだプロフィールに誕生日を設定してないみたいだね。\n")
		b.WriteString("設定が済んだら「登録して」って話しかけてね！\n")
		b.WriteString("（個人情報だから少しサバ読んで設定するのもいいかも）\n")
		b.WriteString("お誕生日をお祝いできるのを楽しみにしてるよ！\n")
	case offset == 0:
		b.WriteString("今日はあなたの誕生日だね！\n")
		b.WriteString(d.congrats(u, today))
	case offset == 1:
		b.WriteString("昨日があなたの誕生日だったんだね！\n")
		b.WriteString(d.congrats(u, today))
	case offset == 2:
		b.WriteString("一昨日があなたの誕生日だったんだね！\n")
		b.WriteString(d.congrats(u, today))
	case offset == -1:
		b.WriteString("あなたのお誕生日は明日だね！\n")
		b.WriteString("お誕生日をお祝いできるのを楽しみにしてるよ！\n")
	default:
		fmt.Fprintf(&b, "あなたのお誕生日は%d月%d日だね！\n", int(u.Birthday.Month), u.Birthday.Day)
		b.WriteString("お誕生日をお祝いできるのを楽しみにしてるよ！\n")
	}
	return b.String()
}

func (d *Dispatcher) followText(u hbd.User, today time.Time) string {
	return greet(u) + "フォローありがとう！\n" + d.birthdayMessage(u, today)
}

func (d *Dispatcher) registerText(u hbd.User, today time.Time) string {
	if u.Birthday.IsZero() {
		return greet(u) + "誕生日が読み取れなかったみたい。ごめんね。\n" +
			"プロフ設定してから「登録して」って話しかけてね！"
	}
	return greet(u) + d.birthdayMessage(u, today)
}

func (d *Dispatcher) celebrateText(u hbd.User, today time.Time) string {
	return greet(u) + d.congrats(u, today)
}

func (d *Dispatcher) helpText(u hbd.User) string {
	var b strings.Builder
	b.WriteString(greet(u))
	b.WriteString("こんにちは。\n")
	fmt.Fprintf(&b, "【私の取り扱い説明書】HBDBot %s\n", d.version)
	b.WriteString("私をフォローするか「登録して」って話しかけると\n")
	b.WriteString("プロフィールに設定した誕生日を記憶するよ。\n")
	fmt.Fprintf(&b, "%sがついているノートを\n", d.reaction)
	b.WriteString(":rn:することがあるよ。\n")
	b.WriteString("\n【コマンド】\n")
	b.WriteString("/ping... 動いているかどうか\n")
	b.WriteString("/help... このメッセージを返信するよ\n")
	b.WriteString("登録して... 誕生日を記憶するよ\n")
	b.WriteString("祝って... お祝いするよ\n")
	return b.String()
}

func pongText(u hbd.User) string {
	return "@" + u.Handle() + " PONG!"
}

func (d *Dispatcher) shutdownText() string {
	return "@" + d.admin + " ごめんにゃさい...処理を終了します"
}
