package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func interaction(rel string, tone Tone, accepted bool) Interaction {
	msg := Message{Content: "hi", Recipient: "Sam", Relationship: rel, Tone: tone, Channel: ChannelChat}
	return Interaction{
		Message:    msg,
		Suggestion: Suggestion{Original: msg, Content: "Hello"},
		Accepted:   accepted,
		Timestamp:  time.Now(),
	}
}

func TestPreferenceMemory_ScoreDefaultsToZero(t *testing.T) {
	m := NewPreferenceMemory()
	assert.Equal(t, 0, m.Score("Boss", ToneFormal))

	var zero PreferenceMemory
	assert.Equal(t, 0, zero.Score("Nobody", ToneWitty))
}

func TestPreferenceMemory_ApplyIsAdditive(t *testing.T) {
	m := NewPreferenceMemory()

	assert.Equal(t, 1, m.Apply(interaction("Boss", ToneFormal, true)))
	assert.Equal(t, 2, m.Apply(interaction("Boss", ToneFormal, true)))
	assert.Equal(t, 1, m.Apply(interaction("Boss", ToneFormal, false)))

	for i := 0; i < 10; i++ {
		m.Apply(interaction("Friend", ToneWitty, false))
	}
	assert.Equal(t, -10, m.Score("Friend", ToneWitty))
	assert.Equal(t, 1, m.Score("Boss", ToneFormal))
	assert.Equal(t, 0, m.Score("Boss", ToneWitty))
	assert.Len(t, m.History, 13)
}

func TestPreferenceMemory_ApplyOnZeroValue(t *testing.T) {
	var m PreferenceMemory
	assert.Equal(t, -1, m.Apply(interaction("Client", ToneUrgent, false)))
	require.Len(t, m.History, 1)
	assert.False(t, m.History[0].Accepted)
}

func TestPreferenceMemory_TrimHistoryKeepsNewest(t *testing.T) {
	m := NewPreferenceMemory()
	for i := 0; i < 5; i++ {
		in := interaction("Boss", ToneFormal, true)
		in.FinalContent = string(rune('a' + i))
		m.Apply(in)
	}

	assert.Equal(t, 0, m.TrimHistory(0))
	assert.Equal(t, 0, m.TrimHistory(10))
	assert.Equal(t, 2, m.TrimHistory(3))
	require.Len(t, m.History, 3)
	assert.Equal(t, "c", m.History[0].FinalContent)
	assert.Equal(t, "e", m.History[2].FinalContent)
	// scores are not affected by trimming
	assert.Equal(t, 5, m.Score("Boss", ToneFormal))
}

func TestParseToneAndChannel(t *testing.T) {
	assert.Equal(t, ToneWitty, ParseTone("Witty"))
	assert.Equal(t, ToneWitty, ParseTone("  witty "))
	assert.Equal(t, ToneProfessional, ParseTone("Sarcastic"))
	assert.Equal(t, ToneProfessional, ParseTone(""))

	assert.Equal(t, ChannelEmail, ParseChannel("Email"))
	assert.Equal(t, ChannelProfessionalChat, ParseChannel("professional chat (slack/teams)"))
	assert.Equal(t, ChannelChat, ParseChannel("Carrier Pigeon"))

	assert.Len(t, Tones, 16)
	assert.Len(t, Channels, 12)
}

func TestUser_IsGuestAndFindContact(t *testing.T) {
	var nilUser *User
	assert.True(t, nilUser.IsGuest())
	assert.True(t, NewGuest().IsGuest())

	u := &User{Username: "alice", Contacts: []Contact{{Name: "Bob", Relationship: "Boss"}}}
	assert.False(t, u.IsGuest())
	assert.Equal(t, 0, u.FindContact("Bob"))
	assert.Equal(t, -1, u.FindContact("Carol"))
}
