package bot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"roast-telegram-bot/metrics"
	"roast-telegram-bot/resolver"
	"roast-telegram-bot/stats"
)

// MessageSender replies to Telegram messages.
type MessageSender interface {
	Reply(ctx context.Context, chatID int64, replyTo int, text string, markdown bool) error
}

// RoastPicker returns a random roast line.
type RoastPicker interface {
	Pick() (string, bool)
}

// CooldownGate throttles roasts per user.
type CooldownGate interface {
	Remaining(userID string) int
	Check(userID string) (bool, int)
}

// TargetResolver finds who a /roast is aimed at.
type TargetResolver interface {
	Resolve(ctx context.Context, msg *tgbotapi.Message) (resolver.Target, bool)
}

// StatsStore keeps per-group roast counters.
type StatsStore interface {
	Record(ctx context.Context, groupID, userID string) error
	Group(groupID string) (stats.GroupStats, bool)
	TopUsers(groupID string, n int) []stats.UserCount
}

const (
	// DefaultTemplate renders the target followed by the roast line.
	DefaultTemplate = "{target} {roast}"
	// DefaultLeaderboard is how many users /stats lists.
	DefaultLeaderboard = 10
)

const (
	welcomeText = "🔥 *RoastHimBot* is online!\n\n" +
		"👉 Add me to a *group* and use `/roast @username` to roast someone brutally 😈"

	helpText = "*📜 RoastHimBot Commands:*\n\n" +
		"🔥 `/roast @username` - Roast the mentioned user brutally.\n" +
		"🔥 Reply to a message with `/roast` - Roast its author.\n" +
		"📊 `/stats` - Show roast stats for the group.\n" +
		"📩 `/help` - Show this help message.\n\n" +
		"⚠️ Works only in *groups*."

	groupsOnlyText  = "❌ This command only works inside groups."
	cooldownText    = "⏱️ Wait %ds before roasting again!"
	noTargetText    = "⚠️ Tag someone to roast! Usage: /roast @username"
	emptyCorpusText = "⚠️ I'm out of roasts right now. Try again later."
	noStatsText     = "📊 No roasts have been done in this group yet!"
	internalErrText = "⚠️ Something went wrong. Please try again."
)

// CommandHandler routes commands to their handlers by chat type.
type CommandHandler struct {
	sender      MessageSender
	roasts      RoastPicker
	cooldown    CooldownGate
	resolver    TargetResolver
	stats       StatsStore
	metrics     metrics.Recorder
	logger      *slog.Logger
	template    string
	username    string
	leaderboard int
}

// Option configures a CommandHandler.
type Option func(*CommandHandler)

// WithTemplate sets the roast template. {target} and {roast} are substituted.
func WithTemplate(tmpl string) Option {
	return func(h *CommandHandler) {
		if tmpl != "" {
			h.template = tmpl
		}
	}
}

// WithBotUsername sets the bot's own username. Commands addressed to any
// other bot with /command@name are then ignored.
func WithBotUsername(username string) Option {
	return func(h *CommandHandler) {
		h.username = strings.TrimPrefix(username, "@")
	}
}

// WithLeaderboardSize sets how many users /stats lists.
func WithLeaderboardSize(n int) Option {
	return func(h *CommandHandler) {
		if n > 0 {
			h.leaderboard = n
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) Option {
	return func(h *CommandHandler) {
		h.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *CommandHandler) {
		h.logger = logger
	}
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(
	sender MessageSender,
	roasts RoastPicker,
	cooldown CooldownGate,
	targets TargetResolver,
	store StatsStore,
	opts ...Option,
) *CommandHandler {
	h := &CommandHandler{
		sender:      sender,
		roasts:      roasts,
		cooldown:    cooldown,
		resolver:    targets,
		stats:       store,
		metrics:     metrics.Noop{},
		logger:      slog.Default(),
		template:    DefaultTemplate,
		leaderboard: DefaultLeaderboard,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Dispatch handles one incoming message. Non-command messages and commands
// used in the wrong kind of chat are ignored. Faults inside a handler are
// logged and answered with a generic error.
func (h *CommandHandler) Dispatch(ctx context.Context, msg *tgbotapi.Message) {
	if msg == nil || msg.Chat == nil || !msg.IsCommand() || !h.addressedToMe(msg) {
		return
	}
	command := strings.ToLower(msg.Command())

	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("command handler panicked",
				"command", command, "chat_id", msg.Chat.ID, "panic", r, "stack", string(debug.Stack()))
			h.fail(ctx, msg, command)
		}
	}()

	outcome, err := h.route(ctx, command, msg)
	if err != nil {
		h.logger.Error("command failed", "command", command, "chat_id", msg.Chat.ID, "error", err)
		h.fail(ctx, msg, command)
		return
	}
	if outcome != "" {
		h.metrics.IncCommand(command, outcome)
	}
}

// route returns the outcome label, or "" for commands the bot does not know.
func (h *CommandHandler) route(ctx context.Context, command string, msg *tgbotapi.Message) (string, error) {
	private := msg.Chat.IsPrivate()
	group := msg.Chat.IsGroup() || msg.Chat.IsSuperGroup()

	switch command {
	case "start":
		if !private {
			return metrics.OutcomeIgnored, nil
		}
		return metrics.OutcomeOK, h.HandleStart(ctx, msg)
	case "help":
		if !private {
			return metrics.OutcomeIgnored, nil
		}
		return metrics.OutcomeOK, h.HandleHelp(ctx, msg)
	case "roast":
		switch {
		case group:
			return h.HandleRoast(ctx, msg)
		case private:
			return metrics.OutcomeRejected, h.reply(ctx, msg, groupsOnlyText, false)
		}
		return metrics.OutcomeIgnored, nil
	case "stats":
		if !group {
			return metrics.OutcomeIgnored, nil
		}
		return metrics.OutcomeOK, h.HandleStats(ctx, msg)
	}
	return "", nil
}

// HandleStart handles /start in a private chat.
func (h *CommandHandler) HandleStart(ctx context.Context, msg *tgbotapi.Message) error {
	return h.reply(ctx, msg, welcomeText, true)
}

// HandleHelp handles /help in a private chat.
func (h *CommandHandler) HandleHelp(ctx context.Context, msg *tgbotapi.Message) error {
	return h.reply(ctx, msg, helpText, true)
}

// HandleRoast handles /roast in a group. The cooldown is only consumed when a
// roast is actually delivered.
func (h *CommandHandler) HandleRoast(ctx context.Context, msg *tgbotapi.Message) (string, error) {
	userID := senderID(msg)

	if wait := h.cooldown.Remaining(userID); wait > 0 {
		return metrics.OutcomeCooldown, h.reply(ctx, msg, fmt.Sprintf(cooldownText, wait), false)
	}

	target, ok := h.resolver.Resolve(ctx, msg)
	if !ok {
		return metrics.OutcomeNoTarget, h.reply(ctx, msg, noTargetText, false)
	}

	line, ok := h.roasts.Pick()
	if !ok {
		return metrics.OutcomeEmpty, h.reply(ctx, msg, emptyCorpusText, false)
	}

	if allowed, wait := h.cooldown.Check(userID); !allowed {
		return metrics.OutcomeCooldown, h.reply(ctx, msg, fmt.Sprintf(cooldownText, wait), false)
	}

	if err := h.reply(ctx, msg, RenderRoast(h.template, target.Display, line), false); err != nil {
		return metrics.OutcomeError, err
	}
	h.metrics.IncRoast(target.Source)

	groupID := strconv.FormatInt(msg.Chat.ID, 10)
	if err := h.stats.Record(ctx, groupID, userID); err != nil {
		h.metrics.IncPersistErrors()
		h.logger.Warn("failed to persist stats", "group_id", groupID, "error", err)
	}

	h.logger.Info("roast delivered", "group_id", groupID, "user_id", userID, "target", target.Display, "source", target.Source)
	return metrics.OutcomeOK, nil
}

// HandleStats handles /stats in a group.
func (h *CommandHandler) HandleStats(ctx context.Context, msg *tgbotapi.Message) error {
	groupID := strconv.FormatInt(msg.Chat.ID, 10)
	group, ok := h.stats.Group(groupID)
	if !ok || group.Total == 0 {
		return h.reply(ctx, msg, noStatsText, false)
	}
	return h.reply(ctx, msg, FormatLeaderboard(group.Total, h.stats.TopUsers(groupID, h.leaderboard)), true)
}

// FormatLeaderboard renders the /stats reply in Telegram Markdown. Users are
// linked by id.
func FormatLeaderboard(total int, top []stats.UserCount) string {
	var sb strings.Builder
	sb.WriteString("📊 *Roast Stats:*\n\n")
	sb.WriteString(fmt.Sprintf("Total Roasts: %d\n\n", total))
	sb.WriteString("*Top Roasters:*\n")
	for _, u := range top {
		sb.WriteString(fmt.Sprintf("- [%s](tg://user?id=%s): %d\n", u.UserID, u.UserID, u.Count))
	}
	return sb.String()
}

// addressedToMe reports whether a /command@name suffix, if any, names this
// bot. Without a configured username every suffix is accepted.
func (h *CommandHandler) addressedToMe(msg *tgbotapi.Message) bool {
	_, name, ok := strings.Cut(msg.CommandWithAt(), "@")
	if !ok || h.username == "" {
		return true
	}
	return strings.EqualFold(name, h.username)
}

func (h *CommandHandler) reply(ctx context.Context, msg *tgbotapi.Message, text string, markdown bool) error {
	if err := h.sender.Reply(ctx, msg.Chat.ID, msg.MessageID, text, markdown); err != nil {
		return fmt.Errorf("reply: %w", err)
	}
	return nil
}

func (h *CommandHandler) fail(ctx context.Context, msg *tgbotapi.Message, command string) {
	h.metrics.IncCommand(command, metrics.OutcomeError)
	if err := h.sender.Reply(ctx, msg.Chat.ID, msg.MessageID, internalErrText, false); err != nil {
		h.logger.Warn("failed to send error reply", "chat_id", msg.Chat.ID, "error", err)
	}
}

func senderID(msg *tgbotapi.Message) string {
	if msg.From != nil {
		return strconv.FormatInt(msg.From.ID, 10)
	}
	if msg.SenderChat != nil {
		return strconv.FormatInt(msg.SenderChat.ID, 10)
	}
	return "0"
}

// RenderRoast substitutes {target} and {roast} in tmpl.
func RenderRoast(tmpl, target, roast string) string {
	return strings.NewReplacer("{target}", target, "{roast}", roast).Replace(tmpl)
}
