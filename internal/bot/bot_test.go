package bot

import (
	"context"
	"fmt"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/diplomat-bot/internal/advisor"
	"github.com/xaenox/diplomat-bot/internal/models"
	"github.com/xaenox/diplomat-bot/internal/rewriter"
	"github.com/xaenox/diplomat-bot/internal/storage"
	"go.uber.org/zap"
)

const testChat int64 = 42

type fakeSender struct {
	sent      []tgbotapi.Chattable
	requested []tgbotapi.Chattable
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requested = append(f.requested, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) last() tgbotapi.MessageConfig {
	if len(f.sent) == 0 {
		return tgbotapi.MessageConfig{}
	}
	msg, _ := f.sent[len(f.sent)-1].(tgbotapi.MessageConfig)
	return msg
}

func newTestBot(t *testing.T) (*Bot, *fakeSender, storage.Storage) {
	t.Helper()
	store := storage.NewMemoryStorage(zap.NewNop())
	n := 0
	svc := advisor.New(store, rewriter.NewEchoRewriter(), zap.NewNop(),
		advisor.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("s%d", n)
		}))
	fs := &fakeSender{}
	return newBot(fs, svc, zap.NewNop()), fs, store
}

func command(text string) *tgbotapi.Message {
	name := strings.SplitN(text, " ", 2)[0]
	return &tgbotapi.Message{
		MessageID: 7,
		Chat:      &tgbotapi.Chat{ID: testChat},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}
}

func draft(text string) *tgbotapi.Message {
	return &tgbotapi.Message{MessageID: 8, Chat: &tgbotapi.Chat{ID: testChat}, Text: text}
}

func callback(data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:      "cb",
		Data:    data,
		Message: &tgbotapi.Message{MessageID: 9, Chat: &tgbotapi.Chat{ID: testChat}},
	}
}

func TestBot_RegisterLoginFlow(t *testing.T) {
	b, fs, store := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, command("/register alice not-an-email pw1"))
	assert.Contains(t, fs.last().Text, "valid email")

	b.handleMessage(ctx, command("/register alice alice@example.com pw1"))
	assert.Contains(t, fs.last().Text, "Account created")

	b.handleMessage(ctx, command("/register alice alice@example.com pw1"))
	assert.Contains(t, fs.last().Text, "already taken")

	b.handleMessage(ctx, command("/login alice wrong"))
	assert.Contains(t, fs.last().Text, "Invalid username or password")

	b.handleMessage(ctx, command("/login alice pw1"))
	assert.Contains(t, fs.last().Text, "Welcome back, alice")
	assert.Equal(t, "alice", b.sessions.get(testChat).user.Username)

	// credentials are removed from the chat
	var deletes int
	for _, c := range fs.requested {
		if _, ok := c.(tgbotapi.DeleteMessageConfig); ok {
			deletes++
		}
	}
	assert.Equal(t, 5, deletes)

	user, err := store.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)

	b.handleMessage(ctx, command("/logout"))
	assert.True(t, b.sessions.get(testChat).user.IsGuest())
}

func TestBot_DraftAndAccept(t *testing.T) {
	b, fs, store := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, command("/register bob bob@example.com pw"))
	b.handleMessage(ctx, command("/login bob pw"))
	b.handleMessage(ctx, command("/addcontact Carol | Boss | manager"))
	b.handleMessage(ctx, command("/to carol"))
	assert.Contains(t, fs.last().Text, "Writing to Carol (Boss)")
	b.handleMessage(ctx, command("/tone formal"))
	b.handleMessage(ctx, command("/channel email"))

	b.handleMessage(ctx, draft("send the report."))
	msg := fs.last()
	assert.Equal(t, tgbotapi.ModeMarkdownV2, msg.ParseMode)
	assert.Contains(t, msg.Text, "Formal, Email")
	assert.Contains(t, msg.Text, "send the report\\.")
	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, kb.InlineKeyboard[0], 3)
	assert.Equal(t, "accept:s1", *kb.InlineKeyboard[0][0].CallbackData)

	b.handleCallback(ctx, callback("accept:s1"))
	assert.Equal(t, "send the report.", fs.last().Text)

	user, err := store.GetUser(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, user.Memory.Score("Boss", models.ToneFormal))
	require.Len(t, user.Memory.History, 1)
	assert.Equal(t, "Carol", user.Memory.History[0].Message.Recipient)

	// a second click on the same suggestion is ignored
	b.handleCallback(ctx, callback("accept:s1"))
	user, err = store.GetUser(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, user.Memory.History, 1)
}

func TestBot_RegenerateAndReject(t *testing.T) {
	b, fs, _ := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, draft("hey"))
	b.handleCallback(ctx, callback("regen:s1"))
	kb := fs.last().ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	assert.Equal(t, "reject:s2", *kb.InlineKeyboard[0][1].CallbackData)

	b.handleCallback(ctx, callback("reject:s2"))
	assert.Contains(t, fs.last().Text, "closer to your own words")

	sess := b.sessions.get(testChat)
	assert.Equal(t, -1, sess.user.Memory.Score(defaultRelationship, models.DefaultTone))
	assert.Empty(t, sess.pending)
}

func TestBot_GuestRestrictions(t *testing.T) {
	b, fs, _ := newTestBot(t)
	ctx := context.Background()

	for _, text := range []string{"/about nurse", "/addcontact Dan", "/editcontact Dan | Daniel", "/deleteaccount", "/rename zed"} {
		b.handleMessage(ctx, command(text))
		assert.Contains(t, fs.last().Text, "need an account", text)
	}
}

func TestBot_Settings(t *testing.T) {
	b, fs, _ := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, command("/tone grumpy"))
	assert.Contains(t, fs.last().Text, "Unknown tone")

	b.handleMessage(ctx, command("/channel sms"))
	assert.Equal(t, "Channel set to SMS / Text Message.", fs.last().Text)

	b.handleMessage(ctx, command("/to Dana | Friend"))
	b.handleMessage(ctx, command("/situation we missed her party"))
	sess := b.sessions.get(testChat)
	assert.Equal(t, "Dana", sess.recipient)
	assert.Equal(t, "Friend", sess.relationship)
	assert.Equal(t, "we missed her party", sess.situation)

	b.handleMessage(ctx, command("/situation"))
	assert.Empty(t, sess.situation)

	b.handleMessage(ctx, command("/bogus"))
	assert.Contains(t, fs.last().Text, "Unknown command")
}

func TestBot_DeleteAccountNeedsConfirmation(t *testing.T) {
	b, fs, store := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, command("/register eve eve@example.com pw"))
	b.handleMessage(ctx, command("/login eve pw"))

	b.handleMessage(ctx, command("/deleteaccount"))
	assert.Contains(t, fs.last().Text, "/deleteaccount confirm")
	user, err := store.GetUser(ctx, "eve")
	require.NoError(t, err)
	assert.NotNil(t, user)

	b.handleMessage(ctx, command("/deleteaccount confirm"))
	user, err = store.GetUser(ctx, "eve")
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.True(t, b.sessions.get(testChat).user.IsGuest())
}

func TestBot_Rename(t *testing.T) {
	b, fs, store := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, command("/register alice alice@example.com pw1"))
	b.handleMessage(ctx, command("/register bob bob@example.com pw1"))
	b.handleMessage(ctx, command("/login alice pw1"))

	b.handleMessage(ctx, command("/rename bob"))
	assert.Contains(t, fs.last().Text, "name is taken")
	assert.Equal(t, "alice", b.sessions.get(testChat).user.Username)

	b.handleMessage(ctx, command("/rename alicia"))
	assert.Equal(t, "You are now alicia.", fs.last().Text)

	// account removed behind the session's back
	require.NoError(t, store.DeleteUser(ctx, "alicia"))
	b.handleMessage(ctx, command("/rename zed"))
	assert.Contains(t, fs.last().Text, "no longer exists")
	assert.Equal(t, "alicia", b.sessions.get(testChat).user.Username)
}

func TestSession_PendingIsBounded(t *testing.T) {
	sess := newSession()
	for i := 0; i < maxPending+5; i++ {
		sess.remember(pendingSuggestion{suggestion: &models.Suggestion{ID: fmt.Sprint(i)}})
	}
	assert.Len(t, sess.pending, maxPending)
	_, ok := sess.take("0")
	assert.False(t, ok)
	_, ok = sess.take(fmt.Sprint(maxPending + 4))
	assert.True(t, ok)
	assert.Len(t, sess.order, maxPending-1)
}
