package bot

import (
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

func TestPendingConsumeFiresHandler(t *testing.T) {
	p := NewPending()
	var got string
	p.Expect("c1", "u1", time.Minute, func(content string) { got = content }, nil)

	if !p.Consume("c1", "u1", "hello") {
		t.Fatal("matching message not claimed")
	}
	if got != "hello" {
		t.Fatalf("handler got %q", got)
	}
	// One-shot: a second message is not claimed.
	if p.Consume("c1", "u1", "again") {
		t.Fatal("expectation fired twice")
	}
}

func TestPendingIgnoresOtherKeys(t *testing.T) {
	p := NewPending()
	p.Expect("c1", "u1", time.Minute, func(string) { t.Fatal("wrong key fired") }, nil)
	if p.Consume("c1", "u2", "x") || p.Consume("c2", "u1", "x") {
		t.Fatal("claimed message for a different key")
	}
}

func TestPendingReplaceDoesNotExpireOld(t *testing.T) {
	p := NewPending()
	p.Expect("c1", "u1", time.Minute, nil, func() { t.Fatal("replaced expectation expired") })
	var got string
	p.Expect("c1", "u1", time.Minute, func(content string) { got = content }, nil)
	p.Consume("c1", "u1", "new")
	if got != "new" {
		t.Fatalf("replacement handler got %q", got)
	}
}

func TestPendingExpiry(t *testing.T) {
	p := NewPending()
	expired := false
	p.Expect("c1", "u1", 10*time.Millisecond, func(string) { t.Fatal("handler fired after deadline") }, func() { expired = true })

	p.expire(time.Now().Add(time.Second))
	if !expired {
		t.Fatal("expiry callback did not fire")
	}
	if p.Consume("c1", "u1", "late") {
		t.Fatal("expired expectation still claimed a message")
	}
}

func TestPendingLateMessageExpires(t *testing.T) {
	p := NewPending()
	expired := false
	p.Expect("c1", "u1", -time.Second, func(string) { t.Fatal("handler fired past deadline") }, func() { expired = true })
	if p.Consume("c1", "u1", "late") {
		t.Fatal("late message claimed")
	}
	if !expired {
		t.Fatal("late consume did not fire expiry")
	}
}

func TestModalValues(t *testing.T) {
	data := discordgo.ModalSubmitInteractionData{
		CustomID: modalIntakePrefix + "bug",
		Components: []discordgo.MessageComponent{
			&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				&discordgo.TextInput{CustomID: "description", Value: "it crashes"},
			}},
			&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				&discordgo.TextInput{CustomID: "steps", Value: "press the button"},
			}},
		},
	}
	got := modalValues(data)
	if got["description"] != "it crashes" || got["steps"] != "press the button" {
		t.Fatalf("modalValues = %v", got)
	}
}
