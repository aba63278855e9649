package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"roast-telegram-bot/cooldown"
	"roast-telegram-bot/resolver"
	"roast-telegram-bot/stats"
)

// Mock implementations for testing

type sentMessage struct {
	chatID   int64
	replyTo  int
	text     string
	markdown bool
}

type mockMessageSender struct {
	sentMessages []sentMessage
	err          error
}

func (m *mockMessageSender) Reply(_ context.Context, chatID int64, replyTo int, text string, markdown bool) error {
	m.sentMessages = append(m.sentMessages, sentMessage{chatID, replyTo, text, markdown})
	return m.err
}

func (m *mockMessageSender) last(t *testing.T) sentMessage {
	t.Helper()
	if len(m.sentMessages) == 0 {
		t.Fatal("no message sent")
	}
	return m.sentMessages[len(m.sentMessages)-1]
}

type mockPicker struct {
	line string
}

func (m *mockPicker) Pick() (string, bool) {
	return m.line, m.line != ""
}

type panickingPicker struct{}

func (panickingPicker) Pick() (string, bool) {
	panic("corrupt corpus")
}

type mockStats struct {
	*stats.Store
	recordErr error
}

func (m *mockStats) Record(ctx context.Context, groupID, userID string) error {
	if err := m.Store.Record(ctx, groupID, userID); err != nil {
		return err
	}
	return m.recordErr
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type testEnv struct {
	sender  *mockMessageSender
	picker  *mockPicker
	clock   *fakeClock
	stats   *mockStats
	handler *CommandHandler
}

func newTestEnv(opts ...Option) *testEnv {
	env := &testEnv{
		sender: &mockMessageSender{},
		picker: &mockPicker{line: "is proof that evolution can go in reverse."},
		clock:  &fakeClock{now: time.Unix(1_700_000_000, 0)},
		stats:  &mockStats{Store: stats.NewStore(nil)},
	}
	env.handler = NewCommandHandler(
		env.sender,
		env.picker,
		cooldown.New(5*time.Second, cooldown.WithClock(env.clock.Now)),
		resolver.New(nil, nil),
		env.stats,
		append([]Option{WithBotUsername("RoastHimBot")}, opts...)...,
	)
	return env
}

const groupID = -1001234

func newCommand(chatType string, chatID int64, fromID int64, text string, entities ...tgbotapi.MessageEntity) *tgbotapi.Message {
	cmdLen := strings.IndexByte(text, ' ')
	if cmdLen < 0 {
		cmdLen = len(text)
	}
	return &tgbotapi.Message{
		MessageID: 77,
		Text:      text,
		Entities:  append([]tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}}, entities...),
		From:      &tgbotapi.User{ID: fromID, FirstName: "User"},
		Chat:      &tgbotapi.Chat{ID: chatID, Type: chatType},
	}
}

func roastMention(fromID int64, handle string) *tgbotapi.Message {
	text := "/roast " + handle
	return newCommand("supergroup", groupID, fromID, text,
		tgbotapi.MessageEntity{Type: "mention", Offset: 7, Length: len(handle)})
}

func TestStartPrivate(t *testing.T) {
	env := newTestEnv()
	env.handler.Dispatch(context.Background(), newCommand("private", 42, 42, "/start"))

	if len(env.sender.sentMessages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(env.sender.sentMessages))
	}
	msg := env.sender.sentMessages[0]
	if msg.chatID != 42 || msg.replyTo != 77 {
		t.Errorf("reply sent to chat %d / message %d", msg.chatID, msg.replyTo)
	}
	if !msg.markdown || !strings.Contains(msg.text, "RoastHimBot") {
		t.Errorf("unexpected welcome message: %+v", msg)
	}
}

func TestHelpPrivate(t *testing.T) {
	env := newTestEnv()
	env.handler.Dispatch(context.Background(), newCommand("private", 42, 42, "/help"))

	msg := env.sender.last(t)
	if !strings.Contains(msg.text, "/roast @username") || !strings.Contains(msg.text, "/stats") {
		t.Errorf("help should list commands, got: %s", msg.text)
	}
}

func TestStartAndHelpIgnoredInGroups(t *testing.T) {
	env := newTestEnv()
	env.handler.Dispatch(context.Background(), newCommand("group", groupID, 1, "/start"))
	env.handler.Dispatch(context.Background(), newCommand("group", groupID, 1, "/help"))

	if len(env.sender.sentMessages) != 0 {
		t.Errorf("expected no replies in group, got %d", len(env.sender.sentMessages))
	}
}

func TestStatsIgnoredInPrivate(t *testing.T) {
	env := newTestEnv()
	env.handler.Dispatch(context.Background(), newCommand("private", 42, 42, "/stats"))

	if len(env.sender.sentMessages) != 0 {
		t.Errorf("expected no reply, got %d", len(env.sender.sentMessages))
	}
}

func TestRoastPrivateRejected(t *testing.T) {
	env := newTestEnv()
	env.handler.Dispatch(context.Background(), newCommand("private", 42, 42, "/roast @bob"))

	if got := env.sender.last(t).text; got != groupsOnlyText {
		t.Errorf("got %q, want %q", got, groupsOnlyText)
	}
}

func TestNonCommandIgnored(t *testing.T) {
	env := newTestEnv()
	env.handler.Dispatch(context.Background(), &tgbotapi.Message{
		Text: "hello @bob",
		Chat: &tgbotapi.Chat{ID: groupID, Type: "group"},
	})
	env.handler.Dispatch(context.Background(), newCommand("group", groupID, 1, "/unknown"))
	env.handler.Dispatch(context.Background(), nil)

	if len(env.sender.sentMessages) != 0 {
		t.Errorf("expected no replies, got %d", len(env.sender.sentMessages))
	}
}

func TestRoastWithMention(t *testing.T) {
	env := newTestEnv()
	env.handler.Dispatch(context.Background(), roastMention(1, "@bob"))

	msg := env.sender.last(t)
	want := "@bob is proof that evolution can go in reverse."
	if msg.text != want {
		t.Errorf("got %q, want %q", msg.text, want)
	}
	if msg.markdown {
		t.Error("roast replies must be plain text")
	}

	g, ok := env.stats.Group("-1001234")
	if !ok || g.Total != 1 || len(g.Users) != 1 || g.Users[0].UserID != "1" {
		t.Errorf("stats not recorded for invoking user: %+v", g)
	}
}

func TestRoastWithCommandSuffix(t *testing.T) {
	env := newTestEnv()
	msg := newCommand("group", groupID, 1, "/roast@RoastHimBot @bob",
		tgbotapi.MessageEntity{Type: "mention", Offset: 19, Length: 4})
	env.handler.Dispatch(context.Background(), msg)

	if got := env.sender.last(t).text; !strings.HasPrefix(got, "@bob ") {
		t.Errorf("got %q", got)
	}
}

func TestCommandForOtherBotIgnored(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.handler.Dispatch(ctx, newCommand("group", groupID, 1, "/roast@OtherBot @bob",
		tgbotapi.MessageEntity{Type: "mention", Offset: 16, Length: 4}))
	env.handler.Dispatch(ctx, newCommand("group", groupID, 1, "/stats@OtherBot"))
	env.handler.Dispatch(ctx, newCommand("private", 42, 42, "/start@OtherBot"))

	if len(env.sender.sentMessages) != 0 {
		t.Errorf("expected no replies, got %+v", env.sender.sentMessages)
	}
	if _, ok := env.stats.Group("-1001234"); ok {
		t.Error("roast for another bot must not record stats")
	}

	// The cooldown was not consumed either.
	env.handler.Dispatch(ctx, roastMention(1, "@bob"))
	if got := env.sender.last(t).text; !strings.HasPrefix(got, "@bob ") {
		t.Errorf("got %q", got)
	}
}

func TestCommandSuffixMatchesCaseInsensitively(t *testing.T) {
	env := newTestEnv()
	env.handler.Dispatch(context.Background(), newCommand("group", groupID, 1, "/stats@roasthimbot"))

	if got := env.sender.last(t).text; got != noStatsText {
		t.Errorf("got %q, want %q", got, noStatsText)
	}
}

func TestCommandSuffixAcceptedWithoutUsername(t *testing.T) {
	sender := &mockMessageSender{}
	handler := NewCommandHandler(sender, &mockPicker{line: "x"},
		cooldown.New(5*time.Second), resolver.New(nil, nil), stats.NewStore(nil))

	handler.Dispatch(context.Background(), newCommand("group", groupID, 1, "/stats@AnyBot"))

	if got := sender.last(t).text; got != noStatsText {
		t.Errorf("got %q, want %q", got, noStatsText)
	}
}

func TestRoastReplyTarget(t *testing.T) {
	env := newTestEnv(WithTemplate("Hey {target}, you {roast}"))
	msg := newCommand("group", groupID, 1, "/roast")
	msg.ReplyToMessage = &tgbotapi.Message{From: &tgbotapi.User{ID: 9, FirstName: "Carol"}}
	env.handler.Dispatch(context.Background(), msg)

	want := "Hey Carol, you is proof that evolution can go in reverse."
	if got := env.sender.last(t).text; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRoastCooldown(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.handler.Dispatch(ctx, roastMention(1, "@bob"))
	env.clock.now = env.clock.now.Add(2 * time.Second)
	env.handler.Dispatch(ctx, roastMention(1, "@bob"))

	if got := env.sender.last(t).text; got != "⏱️ Wait 3s before roasting again!" {
		t.Errorf("got %q", got)
	}
	if g, _ := env.stats.Group("-1001234"); g.Total != 1 {
		t.Errorf("cooldown rejection must not record stats, total = %d", g.Total)
	}

	// Other users are not affected.
	env.handler.Dispatch(ctx, roastMention(2, "@bob"))
	if got := env.sender.last(t).text; !strings.HasPrefix(got, "@bob ") {
		t.Errorf("second user should roast, got %q", got)
	}

	env.clock.now = env.clock.now.Add(3 * time.Second)
	env.handler.Dispatch(ctx, roastMention(1, "@bob"))
	if got := env.sender.last(t).text; !strings.HasPrefix(got, "@bob ") {
		t.Errorf("cooldown should have expired, got %q", got)
	}
}

func TestRoastNoTarget(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.handler.Dispatch(ctx, newCommand("group", groupID, 1, "/roast"))
	if got := env.sender.last(t).text; got != noTargetText {
		t.Errorf("got %q, want %q", got, noTargetText)
	}
	if _, ok := env.stats.Group("-1001234"); ok {
		t.Error("failed roast must not create stats")
	}

	// The failed attempt did not start a cooldown.
	env.handler.Dispatch(ctx, roastMention(1, "@bob"))
	if got := env.sender.last(t).text; !strings.HasPrefix(got, "@bob ") {
		t.Errorf("got %q", got)
	}
}

func TestRoastEmptyCorpus(t *testing.T) {
	env := newTestEnv()
	env.picker.line = ""
	env.handler.Dispatch(context.Background(), roastMention(1, "@bob"))

	if got := env.sender.last(t).text; got != emptyCorpusText {
		t.Errorf("got %q", got)
	}
}

func TestRoastPersistenceFailureStillReplies(t *testing.T) {
	env := newTestEnv()
	env.stats.recordErr = errors.New("disk full")
	env.handler.Dispatch(context.Background(), roastMention(1, "@bob"))

	if len(env.sender.sentMessages) != 1 {
		t.Fatalf("expected only the roast reply, got %d messages", len(env.sender.sentMessages))
	}
	if g, _ := env.stats.Group("-1001234"); g.Total != 1 {
		t.Errorf("in-memory count should stand, total = %d", g.Total)
	}
}

func TestStatsNoRoasts(t *testing.T) {
	env := newTestEnv()
	env.handler.Dispatch(context.Background(), newCommand("group", groupID, 1, "/stats"))

	if got := env.sender.last(t).text; got != noStatsText {
		t.Errorf("got %q, want %q", got, noStatsText)
	}
}

func TestStatsLeaderboard(t *testing.T) {
	env := newTestEnv(WithLeaderboardSize(2))
	ctx := context.Background()
	for _, uid := range []string{"10", "20", "20", "30", "30"} {
		if err := env.stats.Store.Record(ctx, "-1001234", uid); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	env.handler.Dispatch(ctx, newCommand("supergroup", groupID, 1, "/stats"))
	msg := env.sender.last(t)
	if !msg.markdown {
		t.Error("leaderboard should be markdown")
	}
	if !strings.Contains(msg.text, "Total Roasts: 5") {
		t.Errorf("missing total: %s", msg.text)
	}
	first := strings.Index(msg.text, "[20](tg://user?id=20): 2")
	second := strings.Index(msg.text, "[30](tg://user?id=30): 2")
	if first < 0 || second < 0 || first > second {
		t.Errorf("ties should keep insertion order: %s", msg.text)
	}
	if strings.Contains(msg.text, "id=10") {
		t.Errorf("leaderboard should be truncated: %s", msg.text)
	}
}

func TestFormatLeaderboard(t *testing.T) {
	got := FormatLeaderboard(3, []stats.UserCount{{UserID: "5", Count: 3}})
	want := "📊 *Roast Stats:*\n\nTotal Roasts: 3\n\n*Top Roasters:*\n- [5](tg://user?id=5): 3\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPanicRecovered(t *testing.T) {
	sender := &mockMessageSender{}
	handler := NewCommandHandler(sender, panickingPicker{},
		cooldown.New(5*time.Second), resolver.New(nil, nil), stats.NewStore(nil))

	handler.Dispatch(context.Background(), roastMention(1, "@bob"))

	if got := sender.last(t).text; got != internalErrText {
		t.Errorf("got %q, want %q", got, internalErrText)
	}
}

func TestSendErrorReported(t *testing.T) {
	env := newTestEnv()
	env.sender.err = errors.New("forbidden")
	env.handler.Dispatch(context.Background(), newCommand("private", 42, 42, "/start"))

	// The welcome attempt failed, so a generic error reply is attempted too.
	if len(env.sender.sentMessages) != 2 || env.sender.sentMessages[1].text != internalErrText {
		t.Errorf("unexpected messages: %+v", env.sender.sentMessages)
	}
}

func TestRenderRoast(t *testing.T) {
	if got := RenderRoast("{target} {roast}", "@a", "b"); got != "@a b" {
		t.Errorf("got %q", got)
	}
	if got := RenderRoast("{roast} ({target})", "@a", "uses {target}"); got != "uses {target} (@a)" {
		t.Errorf("substituted text must not be expanded again, got %q", got)
	}
}
