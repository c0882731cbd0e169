package advisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/diplomat-bot/internal/models"
	"github.com/xaenox/diplomat-bot/internal/rewriter"
	"github.com/xaenox/diplomat-bot/internal/storage"
	"go.uber.org/zap"
)

type fakeRewriter struct {
	mu        sync.Mutex
	rewrites  []rewriter.RewriteRequest
	explains  []rewriter.ExplainRequest
	deadlines []bool
}

func (f *fakeRewriter) Rewrite(ctx context.Context, req rewriter.RewriteRequest) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := ctx.Deadline()
	f.deadlines = append(f.deadlines, ok)
	f.rewrites = append(f.rewrites, req)
	return "Rewritten: " + req.Original
}

func (f *fakeRewriter) Explain(ctx context.Context, req rewriter.ExplainRequest) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.explains = append(f.explains, req)
	return "Because."
}

// countingStore records writes so tests can assert nothing was persisted.
type countingStore struct {
	storage.Storage
	saves int
}

func (c *countingStore) SaveUser(ctx context.Context, user *models.User) error {
	c.saves++
	return c.Storage.SaveUser(ctx, user)
}

type failingStore struct {
	storage.Storage
}

func (failingStore) SaveUser(context.Context, *models.User) error {
	return errors.New("disk full")
}

func newTestService(t *testing.T, opts ...Option) (*Service, *fakeRewriter, *countingStore) {
	t.Helper()
	store := &countingStore{Storage: storage.NewMemoryStorage(zap.NewNop())}
	rw := &fakeRewriter{}
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	opts = append([]Option{
		WithClock(func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}),
		WithIDGenerator(func() string { return "sugg-1" }),
	}, opts...)
	return New(store, rw, zap.NewNop(), opts...), rw, store
}

func registerAndLogin(t *testing.T, s *Service, name string) *models.User {
	t.Helper()
	ctx := context.Background()
	ok, err := s.Register(ctx, name, name+"@example.com", "pw1")
	require.NoError(t, err)
	require.True(t, ok)
	user, err := s.Login(ctx, name, "pw1")
	require.NoError(t, err)
	require.NotNil(t, user)
	return user
}

func TestRegisterAndLogin(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	ok, err := s.Register(ctx, "alice", "a@x.com", "pw1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Register(ctx, "alice", "other@x.com", "pw2")
	require.NoError(t, err)
	assert.False(t, ok)

	user, err := s.Login(ctx, "alice", "pw1")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "a@x.com", user.Email)
	assert.Equal(t, "c592df4a86933b92addc9842402ddf198c638ea9be58916ee6e3734e1e3152f8", user.PasswordHash)
	assert.Empty(t, user.Contacts)
	assert.Empty(t, user.Memory.History)

	user, err = s.Login(ctx, "alice", "wrong")
	require.NoError(t, err)
	assert.Nil(t, user)

	user, err = s.Login(ctx, "nobody", "pw1")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestRegister_RejectsReservedNames(t *testing.T) {
	s, _, _ := newTestService(t)
	for _, name := range []string{"", "guest", " bob"} {
		ok, err := s.Register(context.Background(), name, "", "pw")
		assert.ErrorIs(t, err, ErrInvalidInput, name)
		assert.False(t, ok)
	}
	_, err := s.Register(context.Background(), "bob", "", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAdvise_BuildsSuggestion(t *testing.T) {
	s, rw, store := newTestService(t)
	user := registerAndLogin(t, s, "alice")
	saves := store.saves

	sugg := s.Advise(context.Background(), user, AdviceRequest{
		Text:         "send the report",
		Recipient:    "Bob",
		Relationship: "Boss",
		Tone:         "formal",
		Channel:      "Email",
	})

	require.NotNil(t, sugg)
	assert.Equal(t, "sugg-1", sugg.ID)
	assert.Equal(t, "Rewritten: send the report", sugg.Content)
	assert.Equal(t, "Because.", sugg.Reasoning)
	assert.Equal(t, []string{ChangeGenerativeRewrite}, sugg.Changes)
	assert.Equal(t, models.ToneFormal, sugg.Original.Tone)
	assert.Equal(t, models.ChannelEmail, sugg.Original.Channel)
	assert.Equal(t, "Boss", sugg.Original.Relationship)
	assert.Equal(t, "Bob", sugg.Original.Recipient)

	require.Len(t, rw.rewrites, 1)
	assert.Equal(t, "Formal", rw.rewrites[0].Tone)
	assert.Equal(t, "Email", rw.rewrites[0].Channel)
	assert.Empty(t, rw.rewrites[0].Guidance)
	require.Len(t, rw.explains, 1)
	assert.Equal(t, sugg.Content, rw.explains[0].Rewritten)

	assert.Equal(t, saves, store.saves, "advise must not persist")
}

func TestAdvise_DefaultsAndSituation(t *testing.T) {
	s, rw, _ := newTestService(t)

	sugg := s.Advise(context.Background(), nil, AdviceRequest{
		Text:      "hi",
		Tone:      "Grumpy",
		Channel:   "Carrier Pigeon",
		Situation: "late reply",
	})

	assert.Equal(t, models.DefaultTone, sugg.Original.Tone)
	assert.Equal(t, models.DefaultChannel, sugg.Original.Channel)
	assert.Equal(t, "[Context: late reply] \nMessage: hi", sugg.Original.Content)
	assert.Equal(t, sugg.Original.Content, rw.rewrites[0].Original)
}

func TestAdvise_AppliesTimeout(t *testing.T) {
	s, rw, _ := newTestService(t, WithTimeout(time.Minute))
	s.Advise(context.Background(), nil, AdviceRequest{Text: "x"})
	assert.Equal(t, []bool{true}, rw.deadlines)

	s, rw, _ = newTestService(t, WithTimeout(0))
	s.Advise(context.Background(), nil, AdviceRequest{Text: "x"})
	assert.Equal(t, []bool{false}, rw.deadlines)
}

func TestLearn_RejectionAddsWarning(t *testing.T) {
	s, rw, _ := newTestService(t)
	ctx := context.Background()
	user := registerAndLogin(t, s, "alice")
	require.NoError(t, s.UpdateContext(ctx, user, "Team lead"))

	req := AdviceRequest{Text: "send files", Recipient: "Carol", Relationship: "Boss", Tone: "Formal"}
	sugg := s.Advise(ctx, user, req)
	assert.Equal(t, "USER CONTEXT (The Sender): Team lead\n", rw.rewrites[0].Guidance)

	require.NoError(t, s.Learn(ctx, user, sugg, false))
	assert.Equal(t, -1, user.Memory.Score("Boss", models.ToneFormal))

	s.Advise(ctx, user, req)
	assert.Contains(t, rw.rewrites[1].Guidance, "WARNING")
	assert.Contains(t, rw.rewrites[1].Guidance, "'Formal'")

	stored, err := s.Login(ctx, "alice", "pw1")
	require.NoError(t, err)
	assert.Equal(t, -1, stored.Memory.Score("Boss", models.ToneFormal))
	require.Len(t, stored.Memory.History, 1)
	assert.False(t, stored.Memory.History[0].Accepted)
	assert.Equal(t, "send files", stored.Memory.History[0].FinalContent)
}

func TestLearn_AcceptancesAddNote(t *testing.T) {
	s, rw, _ := newTestService(t)
	ctx := context.Background()
	user := registerAndLogin(t, s, "alice")

	req := AdviceRequest{Text: "party!", Relationship: "Friend", Tone: "Humorous"}
	for i := 0; i < 4; i++ {
		sugg := s.Advise(ctx, user, req)
		require.NoError(t, s.Learn(ctx, user, sugg, true))
	}
	assert.Equal(t, 4, user.Memory.Score("Friend", models.ToneHumorous))
	assert.Equal(t, "Rewritten: party!", user.Memory.History[0].FinalContent)

	s.Advise(ctx, user, req)
	assert.Contains(t, rw.rewrites[4].Guidance, "NOTE")
}

func TestLearn_GuestIsNotPersisted(t *testing.T) {
	s, _, store := newTestService(t)
	ctx := context.Background()
	guest := models.NewGuest()

	sugg := s.Advise(ctx, guest, AdviceRequest{Text: "hey", Relationship: "Friend", Tone: "Casual"})
	require.NoError(t, s.Learn(ctx, guest, sugg, true))

	assert.Equal(t, 0, store.saves)
	assert.Equal(t, 1, guest.Memory.Score("Friend", models.ToneCasual))
	stored, err := store.GetUser(ctx, models.GuestUsername)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestLearn_Errors(t *testing.T) {
	s, _, _ := newTestService(t)
	assert.ErrorIs(t, s.LearnWithText(context.Background(), nil, nil, true, ""), ErrUnknownSuggestion)

	s = New(failingStore{Storage: storage.NewMemoryStorage(zap.NewNop())}, &fakeRewriter{}, zap.NewNop())
	user := &models.User{Username: "alice", Memory: models.NewPreferenceMemory()}
	sugg := s.Advise(context.Background(), user, AdviceRequest{Text: "x"})
	err := s.Learn(context.Background(), user, sugg, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestLearn_TrimsHistory(t *testing.T) {
	s, _, _ := newTestService(t, WithMaxHistory(3))
	ctx := context.Background()
	user := registerAndLogin(t, s, "alice")

	for _, text := range []string{"a", "b", "c", "d", "e"} {
		sugg := s.Advise(ctx, user, AdviceRequest{Text: text, Relationship: "Friend"})
		require.NoError(t, s.LearnWithText(ctx, user, sugg, true, text+"!"))
	}

	require.Len(t, user.Memory.History, 3)
	assert.Equal(t, "c!", user.Memory.History[0].FinalContent)
	assert.Equal(t, 5, user.Memory.Score("Friend", models.DefaultTone))
}

func TestHistory_NewestFirstAndFiltered(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	user := registerAndLogin(t, s, "alice")

	for _, to := range []string{"Bob", "Carol", "Bob"} {
		sugg := s.Advise(ctx, user, AdviceRequest{Text: "to " + to, Recipient: to})
		require.NoError(t, s.Learn(ctx, user, sugg, true))
	}

	all := s.History(user, "")
	require.Len(t, all, 3)
	assert.True(t, all[0].Timestamp.After(all[1].Timestamp))
	assert.Equal(t, "to Bob", all[0].Message.Content)

	bob := s.History(user, "Bob")
	assert.Len(t, bob, 2)
	assert.Empty(t, s.History(user, "Dave"))
	assert.Equal(t, []string{"Bob", "Carol"}, s.Recipients(user))
	assert.Nil(t, s.History(nil, ""))
}

func TestPreferences_Sorted(t *testing.T) {
	s, _, _ := newTestService(t)
	user := registerAndLogin(t, s, "alice")

	assert.Empty(t, s.Preferences(user))
	assert.Nil(t, s.Preferences(nil))

	user.Memory.Relationships["Friend"] = map[models.Tone]int{models.ToneCasual: 3}
	user.Memory.Relationships["Boss"] = map[models.Tone]int{models.ToneFormal: 3, models.ToneWitty: -2}

	assert.Equal(t, []Preference{
		{Relationship: "Boss", Tone: models.ToneFormal, Score: 3},
		{Relationship: "Friend", Tone: models.ToneCasual, Score: 3},
		{Relationship: "Boss", Tone: models.ToneWitty, Score: -2},
	}, s.Preferences(user))
}

func TestGuestRestrictions(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	guest := models.NewGuest()

	assert.ErrorIs(t, s.UpdateContext(ctx, guest, "x"), ErrGuest)
	assert.ErrorIs(t, s.AddContact(ctx, guest, models.Contact{Name: "Bob"}), ErrGuest)
	assert.ErrorIs(t, s.DeleteAccount(ctx, guest), ErrGuest)
	_, err := s.ChangeUsername(ctx, guest, "bob")
	assert.ErrorIs(t, err, ErrGuest)
}

func TestChangeUsername(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	alice := registerAndLogin(t, s, "alice")
	registerAndLogin(t, s, "bob")

	ok, err := s.ChangeUsername(ctx, alice, "bob")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "alice", alice.Username)

	ok, err = s.ChangeUsername(ctx, alice, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.ChangeUsername(ctx, alice, "guest")
	assert.ErrorIs(t, err, ErrInvalidInput)

	ok, err = s.ChangeUsername(ctx, alice, "alicia")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "alicia", alice.Username)

	user, err := s.Login(ctx, "alicia", "pw1")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "alicia", user.Username)
	user, err = s.Login(ctx, "alice", "pw1")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestDeleteAccount(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	alice := registerAndLogin(t, s, "alice")

	require.NoError(t, s.DeleteAccount(ctx, alice))
	user, err := s.Login(ctx, "alice", "pw1")
	require.NoError(t, err)
	assert.Nil(t, user)

	ok, err := s.Register(ctx, "alice", "", "pw2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestContacts(t *testing.T) {
	s, _, store := newTestService(t)
	ctx := context.Background()
	alice := registerAndLogin(t, s, "alice")

	require.NoError(t, s.AddContact(ctx, alice, models.Contact{Name: " Bob ", Relationship: "Friend"}))
	assert.ErrorIs(t, s.AddContact(ctx, alice, models.Contact{Name: "Bob"}), ErrContactExists)
	assert.ErrorIs(t, s.AddContact(ctx, alice, models.Contact{Name: "  "}), ErrInvalidInput)
	require.NoError(t, s.AddContact(ctx, alice, models.Contact{Name: "Carol", Relationship: "Boss"}))

	assert.ErrorIs(t, s.UpdateContact(ctx, alice, "Dave", models.Contact{Name: "Dave"}), ErrContactNotFound)
	assert.ErrorIs(t, s.UpdateContact(ctx, alice, "Bob", models.Contact{Name: "Carol"}), ErrContactExists)
	require.NoError(t, s.UpdateContact(ctx, alice, "Bob", models.Contact{Name: "Robert", Relationship: "Friend", Description: "college"}))

	saves := store.saves
	require.NoError(t, s.DeleteContact(ctx, alice, "Nobody"))
	assert.Equal(t, saves, store.saves)
	require.NoError(t, s.DeleteContact(ctx, alice, "Carol"))

	stored, err := s.Login(ctx, "alice", "pw1")
	require.NoError(t, err)
	assert.Equal(t, []models.Contact{{Name: "Robert", Relationship: "Friend", Description: "college"}}, stored.Contacts)
}
