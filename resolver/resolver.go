// Package resolver works out who a /roast command is aimed at.
package resolver

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Placeholder is shown for a mentioned user with neither a username nor a
// first name.
const Placeholder = "someone"

// Strategy names, in priority order.
const (
	SourceTextMention = "text_mention"
	SourceMention     = "mention"
	SourceReply       = "reply"
	SourceArgument    = "argument"
)

// Target is the resolved display string and the strategy that produced it.
type Target struct {
	Display string
	Source  string
}

type strategy struct {
	name    string
	resolve func(ctx context.Context, msg *tgbotapi.Message) (string, bool)
}

// Resolver runs a fixed chain of strategies; the first one that produces a
// name wins and later ones are never consulted.
type Resolver struct {
	lookup     UserLookup
	logger     *slog.Logger
	strategies []strategy
}

// New creates a resolver. lookup may be nil, in which case typed @handles are
// always shown verbatim.
func New(lookup UserLookup, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{lookup: lookup, logger: logger}
	r.strategies = []strategy{
		{SourceTextMention, r.fromTextMention},
		{SourceMention, r.fromMention},
		{SourceReply, r.fromReply},
		{SourceArgument, r.fromArgument},
	}
	return r
}

// Resolve returns the roast target for msg, or false if nobody was tagged.
func (r *Resolver) Resolve(ctx context.Context, msg *tgbotapi.Message) (Target, bool) {
	if msg == nil {
		return Target{}, false
	}
	for _, s := range r.strategies {
		if display, ok := s.resolve(ctx, msg); ok {
			return Target{Display: display, Source: s.name}, true
		}
	}
	return Target{}, false
}

// DisplayName renders a user as @username, else first name, else Placeholder.
func DisplayName(u *tgbotapi.User) string {
	switch {
	case u == nil:
		return Placeholder
	case u.UserName != "":
		return "@" + u.UserName
	case strings.TrimSpace(u.FirstName) != "":
		return u.FirstName
	default:
		return Placeholder
	}
}

func (r *Resolver) fromTextMention(_ context.Context, msg *tgbotapi.Message) (string, bool) {
	for _, e := range msg.Entities {
		if e.Type == "text_mention" && e.User != nil {
			return DisplayName(e.User), true
		}
	}
	return "", false
}

func (r *Resolver) fromMention(ctx context.Context, msg *tgbotapi.Message) (string, bool) {
	for _, e := range msg.Entities {
		if e.Type != "mention" {
			continue
		}
		handle := entityText(msg.Text, e)
		if len(handle) > 1 && strings.HasPrefix(handle, "@") {
			return r.resolveHandle(ctx, handle), true
		}
	}
	return "", false
}

func (r *Resolver) fromReply(_ context.Context, msg *tgbotapi.Message) (string, bool) {
	reply := msg.ReplyToMessage
	if reply == nil || reply.From == nil {
		return "", false
	}
	return DisplayName(reply.From), true
}

func (r *Resolver) fromArgument(ctx context.Context, msg *tgbotapi.Message) (string, bool) {
	fields := strings.Fields(msg.CommandArguments())
	if len(fields) == 0 {
		return "", false
	}
	token := fields[0]
	if len(token) < 2 || !strings.HasPrefix(token, "@") {
		return "", false
	}
	return r.resolveHandle(ctx, token), true
}

// resolveHandle looks the handle up and falls back to the typed text when the
// user is unknown, private or the lookup fails.
func (r *Resolver) resolveHandle(ctx context.Context, handle string) string {
	if r.lookup == nil {
		return handle
	}
	u, err := r.lookup.LookupUser(ctx, strings.TrimPrefix(handle, "@"))
	if err != nil || u == nil {
		r.logger.Debug("handle lookup failed, using typed text", "handle", handle, "error", err)
		return handle
	}
	if u.UserName == "" && strings.TrimSpace(u.FirstName) == "" {
		return handle
	}
	return DisplayName(u)
}

// entityText slices an entity out of text. Telegram measures entity offsets
// and lengths in UTF-16 code units.
func entityText(text string, e tgbotapi.MessageEntity) string {
	units := utf16.Encode([]rune(text))
	if e.Offset < 0 || e.Length <= 0 || e.Offset+e.Length > len(units) {
		return ""
	}
	return string(utf16.Decode(units[e.Offset : e.Offset+e.Length]))
}
