package models

import "strings"

// Tone is the emotional register requested for a rewrite
type Tone string

const (
	ToneFormal       Tone = "Formal"
	ToneCasual       Tone = "Casual"
	ToneFriendly     Tone = "Friendly"
	ToneAssertive    Tone = "Assertive"
	ToneProfessional Tone = "Professional"
	ToneFlirty       Tone = "Flirty"
	ToneMischievous  Tone = "Mischievous"
	ToneHumorous     Tone = "Humorous"
	ToneEmpathetic   Tone = "Empathetic"
	ToneApologetic   Tone = "Apologetic"
	ToneDiplomatic   Tone = "Diplomatic"
	ToneUrgent       Tone = "Urgent"
	TonePersuasive   Tone = "Persuasive"
	ToneWitty        Tone = "Witty"
	ToneConcise      Tone = "Concise"
	ToneEncouraging  Tone = "Encouraging"
)

// DefaultTone is used when a requested tone is not recognised.
const DefaultTone = ToneProfessional

// Tones lists every supported tone in display order.
var Tones = []Tone{
	ToneFormal, ToneCasual, ToneFriendly, ToneAssertive, ToneProfessional,
	ToneFlirty, ToneMischievous, ToneHumorous, ToneEmpathetic, ToneApologetic,
	ToneDiplomatic, ToneUrgent, TonePersuasive, ToneWitty, ToneConcise,
	ToneEncouraging,
}

// Channel is the medium the rewritten message is meant for
type Channel string

const (
	ChannelChat             Channel = "Chat Message"
	ChannelSMS              Channel = "SMS / Text Message"
	ChannelEmail            Channel = "Email"
	ChannelProfessionalChat Channel = "Professional Chat (Slack/Teams)"
	ChannelLinkedIn         Channel = "LinkedIn Message"
	ChannelDatingApp        Channel = "Dating App Message"
	ChannelSocialPost       Channel = "Social Media Post"
	ChannelCaption          Channel = "Caption"
	ChannelComment          Channel = "Comment / Reply"
	ChannelFormalLetter     Channel = "Formal Letter"
	ChannelReview           Channel = "Review"
	ChannelFeedback         Channel = "Feedback"
)

// DefaultChannel is used when a requested channel is not recognised.
const DefaultChannel = ChannelChat

// Channels lists every supported channel in display order.
var Channels = []Channel{
	ChannelChat, ChannelSMS, ChannelEmail, ChannelProfessionalChat,
	ChannelLinkedIn, ChannelDatingApp, ChannelSocialPost, ChannelCaption,
	ChannelComment, ChannelFormalLetter, ChannelReview, ChannelFeedback,
}

// RelationshipPresets are the relationship labels offered by the front ends.
// Relationships are free text; this list is only a convenience.
var RelationshipPresets = []string{
	"Boss", "Colleague", "Friend", "Family", "Client", "Professor", "Student",
	"Romantic Interest", "Acquaintance", "Intern", "Subordinate",
	"Hiring Manager", "Service Provider", "Mentor", "Neighbour", "Stranger",
	"Other",
}

// LookupTone matches s against the known tones, exactly first and then
// ignoring case and surrounding space.
func LookupTone(s string) (Tone, bool) {
	for _, t := range Tones {
		if string(t) == s {
			return t, true
		}
	}
	s = strings.TrimSpace(s)
	for _, t := range Tones {
		if strings.EqualFold(string(t), s) {
			return t, true
		}
	}
	return "", false
}

// ParseTone is LookupTone with a fallback to DefaultTone.
func ParseTone(s string) Tone {
	if t, ok := LookupTone(s); ok {
		return t
	}
	return DefaultTone
}

// LookupChannel matches s against the known channels, exactly first and then
// ignoring case and surrounding space.
func LookupChannel(s string) (Channel, bool) {
	for _, c := range Channels {
		if string(c) == s {
			return c, true
		}
	}
	s = strings.TrimSpace(s)
	for _, c := range Channels {
		if strings.EqualFold(string(c), s) {
			return c, true
		}
	}
	return "", false
}

// ParseChannel is LookupChannel with a fallback to DefaultChannel.
func ParseChannel(s string) Channel {
	if c, ok := LookupChannel(s); ok {
		return c
	}
	return DefaultChannel
}
