package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/diplomat-bot/internal/advisor"
	"github.com/xaenox/diplomat-bot/internal/models"
	"go.uber.org/zap"
)

// sender is the part of the Telegram client the handlers use.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Bot struct {
	api      *tgbotapi.BotAPI
	client   sender
	service  *advisor.Service
	sessions *sessionStore
	validate *validator.Validate
	logger   *zap.Logger
	timeout  int
	wg       sync.WaitGroup
}

func New(token string, debug bool, timeout int, service *advisor.Service, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	api.Debug = debug

	b := newBot(api, service, logger)
	b.api = api
	b.timeout = timeout
	logger.Info("Authorized on Telegram", zap.String("account", api.Self.UserName))
	return b, nil
}

func newBot(client sender, service *advisor.Service, logger *zap.Logger) *Bot {
	return &Bot{
		client:   client,
		service:  service,
		sessions: newSessionStore(),
		validate: validator.New(),
		logger:   logger,
		timeout:  60,
	}
}

// Start polls for updates until ctx is cancelled, then waits for in-flight
// handlers to finish.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.timeout

	updates := b.api.GetUpdatesChan(u)
	defer b.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.handleUpdate(ctx, update)
			}()
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	sess := b.sessions.get(message.Chat.ID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	// Handle commands
	if message.IsCommand() {
		b.handleCommand(ctx, sess, message)
		return
	}

	content := message.Text
	if message.Caption != "" {
		content = message.Caption
	}
	if strings.TrimSpace(content) == "" {
		b.sendMessage(message.Chat.ID, "Send me the message you want to rephrase as text.")
		return
	}

	b.advise(ctx, sess, message.Chat.ID, message.MessageID, sess.request(content))
}

func (b *Bot) advise(ctx context.Context, sess *session, chatID int64, replyToID int, req advisor.AdviceRequest) {
	b.sendTyping(chatID)

	suggestion := b.service.Advise(ctx, sess.user, req)
	sess.remember(pendingSuggestion{suggestion: suggestion, request: req})
	b.sendSuggestion(chatID, replyToID, suggestion)
}

func (b *Bot) handleCommand(ctx context.Context, sess *session, message *tgbotapi.Message) {
	args := strings.TrimSpace(message.CommandArguments())

	switch message.Command() {
	case "start":
		b.handleStart(message)
	case "help":
		b.handleHelp(message)
	case "register":
		b.handleRegister(ctx, message, args)
	case "login":
		b.handleLogin(ctx, sess, message, args)
	case "logout":
		sess.reset(nil)
		b.sendMessage(message.Chat.ID, "Logged out. You are now a guest.")
	case "me":
		b.sendMessage(message.Chat.ID, formatProfile(sess.user)+"\n\n"+formatContext(sess))
	case "about":
		b.handleAbout(ctx, sess, message, args)
	case "rename":
		b.handleRename(ctx, sess, message, args)
	case "deleteaccount":
		b.handleDeleteAccount(ctx, sess, message, args)
	case "contacts":
		b.sendMessage(message.Chat.ID, formatContacts(sess.user.Contacts))
	case "addcontact":
		b.handleAddContact(ctx, sess, message, args)
	case "editcontact":
		b.handleEditContact(ctx, sess, message, args)
	case "delcontact":
		b.handleDeleteContact(ctx, sess, message, args)
	case "to":
		b.handleRecipient(sess, message, args)
	case "tone":
		b.handleTone(sess, message, args)
	case "channel":
		b.handleChannel(sess, message, args)
	case "situation":
		sess.situation = args
		if args == "" {
			b.sendMessage(message.Chat.ID, "Situation cleared.")
			return
		}
		b.sendMessage(message.Chat.ID, "Situation set. It will be sent along with your next drafts.")
	case "tones":
		b.sendMessage(message.Chat.ID, formatTones())
	case "channels":
		b.sendMessage(message.Chat.ID, formatChannels())
	case "history":
		b.sendMessage(message.Chat.ID, formatHistory(b.service.History(sess.user, args), args))
	case "prefs":
		b.sendMessage(message.Chat.ID, formatPreferences(b.service.Preferences(sess.user)))
	default:
		b.sendMessage(message.Chat.ID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleStart(message *tgbotapi.Message) {
	welcome := `Welcome to Diplomat! 🕊
I help you say things the right way.

Pick who you are writing to with /to, choose a /tone and a /channel, then just send me your draft. I'll suggest a rewrite and explain what I changed.
Accept or reject suggestions and I'll learn what you like for each relationship.

Use /help to see all available commands.`

	b.sendMessage(message.Chat.ID, welcome)
}

func (b *Bot) handleHelp(message *tgbotapi.Message) {
	help := `Available commands:
/start - Start the bot
/help - Show this help message

Account:
/register <user> <email> <password> - Create an account
/login <user> <password> - Log in
/logout - Continue as guest
/me - Show your profile and current settings
/about <text> - Tell me who you are (job, style)
/rename <new name> - Change your username
/deleteaccount - Delete your account

Contacts:
/contacts - List contacts
/addcontact name | relationship | note
/editcontact old name | new name | relationship | note
/delcontact <name>

Drafting:
/to <contact> or /to name | relationship
/tone <tone> - e.g. /tone Formal
/channel <channel> - e.g. /channel Email
/situation <text> - Extra context, empty to clear
/tones, /channels - List the options
/history [recipient] - Recent messages
/prefs - What I've learned about you

Anything else you send is treated as a draft.`

	b.sendMessage(message.Chat.ID, help)
}

func (b *Bot) handleRegister(ctx context.Context, message *tgbotapi.Message, args string) {
	b.deleteSensitive(message)

	fields := strings.Fields(args)
	if len(fields) != 3 {
		b.sendMessage(message.Chat.ID, "Usage: /register <user> <email> <password>")
		return
	}
	username, email, password := fields[0], fields[1], fields[2]
	if err := b.validate.Var(email, "required,email"); err != nil {
		b.sendMessage(message.Chat.ID, "That doesn't look like a valid email address.")
		return
	}

	ok, err := b.service.Register(ctx, username, email, password)
	if err != nil {
		b.reportError(message.Chat.ID, err, "register")
		return
	}
	if !ok {
		b.sendMessage(message.Chat.ID, fmt.Sprintf("The username %q is already taken.", username))
		return
	}
	b.sendMessage(message.Chat.ID, "Account created. Log in with /login <user> <password>.")
}

func (b *Bot) handleLogin(ctx context.Context, sess *session, message *tgbotapi.Message, args string) {
	b.deleteSensitive(message)

	fields := strings.Fields(args)
	if len(fields) != 2 {
		b.sendMessage(message.Chat.ID, "Usage: /login <user> <password>")
		return
	}

	user, err := b.service.Login(ctx, fields[0], fields[1])
	if err != nil {
		b.reportError(message.Chat.ID, err, "login")
		return
	}
	if user == nil {
		b.sendErrorMessage(message.Chat.ID, "Invalid username or password.")
		return
	}

	sess.reset(user)
	b.logger.Info("User logged in",
		zap.String("username", user.Username),
		zap.Int64("chat_id", message.Chat.ID))
	b.sendMessage(message.Chat.ID, fmt.Sprintf("Welcome back, %s!", user.Username))
}

func (b *Bot) handleAbout(ctx context.Context, sess *session, message *tgbotapi.Message, args string) {
	if err := b.service.UpdateContext(ctx, sess.user, args); err != nil {
		b.reportError(message.Chat.ID, err, "update context")
		return
	}
	if args == "" {
		b.sendMessage(message.Chat.ID, "Your description was cleared.")
		return
	}
	b.sendMessage(message.Chat.ID, "Got it. I'll keep that in mind when rewriting.")
}

func (b *Bot) handleRename(ctx context.Context, sess *session, message *tgbotapi.Message, args string) {
	ok, err := b.service.ChangeUsername(ctx, sess.user, args)
	if err != nil {
		b.reportError(message.Chat.ID, err, "rename")
		return
	}
	if !ok {
		// a false result also covers an account deleted elsewhere
		b.sendMessage(message.Chat.ID, fmt.Sprintf("Could not rename you to %q. The name is taken or your account no longer exists.", args))
		return
	}
	b.sendMessage(message.Chat.ID, fmt.Sprintf("You are now %s.", sess.user.Username))
}

func (b *Bot) handleDeleteAccount(ctx context.Context, sess *session, message *tgbotapi.Message, args string) {
	if sess.user.IsGuest() {
		b.reportError(message.Chat.ID, advisor.ErrGuest, "delete account")
		return
	}
	if args != "confirm" {
		b.sendMessage(message.Chat.ID, "This permanently deletes your account, contacts and learned preferences.\nSend /deleteaccount confirm to continue.")
		return
	}

	if err := b.service.DeleteAccount(ctx, sess.user); err != nil {
		b.reportError(message.Chat.ID, err, "delete account")
		return
	}
	sess.reset(nil)
	b.sendMessage(message.Chat.ID, "Your account has been deleted.")
}

func (b *Bot) handleAddContact(ctx context.Context, sess *session, message *tgbotapi.Message, args string) {
	f := splitFields(args, 3)
	if f[0] == "" {
		b.sendMessage(message.Chat.ID, "Usage: /addcontact name | relationship | note")
		return
	}
	contact := models.Contact{Name: f[0], Relationship: orDefault(f[1], defaultRelationship), Description: f[2]}

	if err := b.service.AddContact(ctx, sess.user, contact); err != nil {
		b.reportError(message.Chat.ID, err, "add contact")
		return
	}
	b.sendMessage(message.Chat.ID, fmt.Sprintf("Added %s (%s). Use /to %s to write to them.", contact.Name, contact.Relationship, contact.Name))
}

func (b *Bot) handleEditContact(ctx context.Context, sess *session, message *tgbotapi.Message, args string) {
	f := splitFields(args, 4)
	if f[0] == "" {
		b.sendMessage(message.Chat.ID, "Usage: /editcontact old name | new name | relationship | note")
		return
	}
	if sess.user.IsGuest() {
		b.reportError(message.Chat.ID, advisor.ErrGuest, "edit contact")
		return
	}
	i := sess.user.FindContact(f[0])
	if i < 0 {
		b.reportError(message.Chat.ID, advisor.ErrContactNotFound, "edit contact")
		return
	}
	current := sess.user.Contacts[i]
	contact := models.Contact{
		Name:         orDefault(f[1], current.Name),
		Relationship: orDefault(f[2], current.Relationship),
		Description:  orDefault(f[3], current.Description),
	}

	if err := b.service.UpdateContact(ctx, sess.user, f[0], contact); err != nil {
		b.reportError(message.Chat.ID, err, "edit contact")
		return
	}
	if sess.recipient == f[0] {
		sess.recipient = contact.Name
		sess.relationship = contact.Relationship
	}
	b.sendMessage(message.Chat.ID, fmt.Sprintf("Updated %s.", contact.Name))
}

func (b *Bot) handleDeleteContact(ctx context.Context, sess *session, message *tgbotapi.Message, args string) {
	if args == "" {
		b.sendMessage(message.Chat.ID, "Usage: /delcontact <name>")
		return
	}
	if err := b.service.DeleteContact(ctx, sess.user, args); err != nil {
		b.reportError(message.Chat.ID, err, "delete contact")
		return
	}
	b.sendMessage(message.Chat.ID, fmt.Sprintf("Removed %s.", args))
}

func (b *Bot) handleRecipient(sess *session, message *tgbotapi.Message, args string) {
	if args == "" {
		b.sendMessage(message.Chat.ID, formatContext(sess))
		return
	}

	if strings.Contains(args, "|") {
		f := splitFields(args, 2)
		sess.recipient = f[0]
		sess.relationship = orDefault(f[1], defaultRelationship)
	} else if c, ok := findContact(sess.user.Contacts, args); ok {
		sess.recipient = c.Name
		sess.relationship = orDefault(c.Relationship, defaultRelationship)
	} else {
		sess.recipient = args
		sess.relationship = defaultRelationship
	}
	b.sendMessage(message.Chat.ID, fmt.Sprintf("Writing to %s (%s).", displayRecipient(sess.recipient), sess.relationship))
}

func (b *Bot) handleTone(sess *session, message *tgbotapi.Message, args string) {
	if args == "" {
		b.sendMessage(message.Chat.ID, fmt.Sprintf("Current tone: %s\n\n%s", sess.tone, formatTones()))
		return
	}
	tone, ok := models.LookupTone(args)
	if !ok {
		b.sendMessage(message.Chat.ID, fmt.Sprintf("Unknown tone %q.\n\n%s", args, formatTones()))
		return
	}
	sess.tone = tone
	b.sendMessage(message.Chat.ID, fmt.Sprintf("Tone set to %s.", tone))
}

func (b *Bot) handleChannel(sess *session, message *tgbotapi.Message, args string) {
	if args == "" {
		b.sendMessage(message.Chat.ID, fmt.Sprintf("Current channel: %s\n\n%s", sess.channel, formatChannels()))
		return
	}
	channel, ok := matchChannel(args)
	if !ok {
		b.sendMessage(message.Chat.ID, fmt.Sprintf("Unknown channel %q.\n\n%s", args, formatChannels()))
		return
	}
	sess.channel = channel
	b.sendMessage(message.Chat.ID, fmt.Sprintf("Channel set to %s.", channel))
}

func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query.Message == nil {
		b.answerCallback(query.ID, "")
		return
	}
	chatID := query.Message.Chat.ID

	action, id, ok := parseCallback(query.Data)
	if !ok {
		b.answerCallback(query.ID, "Unknown action")
		return
	}

	sess := b.sessions.get(chatID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	pending, ok := sess.take(id)
	b.clearKeyboard(chatID, query.Message.MessageID)
	if !ok {
		b.answerCallback(query.ID, "This suggestion has expired.")
		return
	}

	if action == actionRegenerate {
		b.answerCallback(query.ID, "Trying again…")
		b.advise(ctx, sess, chatID, query.Message.MessageID, pending.request)
		return
	}

	accepted := action == actionAccept
	if err := b.service.Learn(ctx, sess.user, pending.suggestion, accepted); err != nil {
		b.answerCallback(query.ID, "")
		b.reportError(chatID, err, "learn")
		return
	}

	if accepted {
		b.answerCallback(query.ID, "Saved")
		b.sendMessage(chatID, pending.suggestion.Content)
		return
	}
	b.answerCallback(query.ID, "Noted")
	b.sendMessage(chatID, fmt.Sprintf("Got it. I'll keep %s suggestions for %s closer to your own words.",
		pending.suggestion.Original.Tone, orDefault(pending.suggestion.Original.Relationship, "this relationship")))
}

func findContact(contacts []models.Contact, name string) (models.Contact, bool) {
	for _, c := range contacts {
		if c.Name == name {
			return c, true
		}
	}
	for _, c := range contacts {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return models.Contact{}, false
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// reportError turns service errors into a reply. Unexpected errors are
// logged and shown as a generic failure.
func (b *Bot) reportError(chatID int64, err error, op string) {
	switch {
	case errors.Is(err, advisor.ErrGuest):
		b.sendErrorMessage(chatID, "You need an account for that. Use /register or /login.")
	case errors.Is(err, advisor.ErrInvalidInput):
		b.sendErrorMessage(chatID, "That input isn't valid. Use /help to check the format.")
	case errors.Is(err, advisor.ErrContactExists):
		b.sendErrorMessage(chatID, "A contact with that name already exists.")
	case errors.Is(err, advisor.ErrContactNotFound):
		b.sendErrorMessage(chatID, "No contact with that name. See /contacts.")
	default:
		b.logger.Error("Request failed",
			zap.Error(err),
			zap.String("operation", op),
			zap.Int64("chat_id", chatID))
		b.sendErrorMessage(chatID, "Sorry, something went wrong. Please try again.")
	}
}

func suggestionKeyboard(id string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Accept", callbackData(actionAccept, id)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Reject", callbackData(actionReject, id)),
			tgbotapi.NewInlineKeyboardButtonData("🔄 Regenerate", callbackData(actionRegenerate, id)),
		),
	)
}

func (b *Bot) sendSuggestion(chatID int64, replyToID int, suggestion *models.Suggestion) {
	msg := tgbotapi.NewMessage(chatID, formatSuggestion(suggestion))
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.ReplyToMessageID = replyToID
	msg.ReplyMarkup = suggestionKeyboard(suggestion.ID)

	if _, err := b.client.Send(msg); err != nil {
		b.logger.Error("Failed to send suggestion",
			zap.Error(err),
			zap.Int64("chat_id", chatID),
			zap.String("suggestion_id", suggestion.ID))
	}
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.client.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, "⚠️ "+text)
	if _, err := b.client.Send(msg); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendTyping(chatID int64) {
	if _, err := b.client.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		b.logger.Debug("Failed to send chat action", zap.Error(err), zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) answerCallback(id, text string) {
	if _, err := b.client.Request(tgbotapi.NewCallback(id, text)); err != nil {
		b.logger.Debug("Failed to answer callback", zap.Error(err))
	}
}

func (b *Bot) clearKeyboard(chatID int64, messageID int) {
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, tgbotapi.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{},
	})
	if _, err := b.client.Request(edit); err != nil {
		b.logger.Debug("Failed to clear keyboard", zap.Error(err), zap.Int64("chat_id", chatID))
	}
}

// deleteSensitive removes messages that carry a password from the chat.
func (b *Bot) deleteSensitive(message *tgbotapi.Message) {
	if _, err := b.client.Request(tgbotapi.NewDeleteMessage(message.Chat.ID, message.MessageID)); err != nil {
		b.logger.Debug("Failed to delete message with credentials",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}
}
