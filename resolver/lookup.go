package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coocood/freecache"
	json "github.com/goccy/go-json"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrUserNotFound is returned when a username cannot be mapped to a user.
var ErrUserNotFound = errors.New("user not found")

// UserLookup maps a username (without the leading @) to a Telegram user.
type UserLookup interface {
	LookupUser(ctx context.Context, username string) (*tgbotapi.User, error)
}

// Directory remembers users the bot has seen so that @handles typed as plain
// text can be resolved without an API call. Entries expire after ttl.
type Directory struct {
	cache *freecache.Cache
	ttl   int
}

type directoryEntry struct {
	ID        int64  `json:"id"`
	UserName  string `json:"username"`
	FirstName string `json:"first_name"`
	IsBot     bool   `json:"is_bot,omitempty"`
}

// NewDirectory creates a directory of sizeMB megabytes whose entries live for
// ttlSeconds.
func NewDirectory(sizeMB, ttlSeconds int) *Directory {
	return &Directory{
		cache: freecache.NewCache(sizeMB * 1024 * 1024),
		ttl:   ttlSeconds,
	}
}

func directoryKey(username string) []byte {
	return []byte(strings.ToLower(strings.TrimPrefix(username, "@")))
}

// Observe records u if it has a public username.
func (d *Directory) Observe(u *tgbotapi.User) {
	if u == nil || u.UserName == "" {
		return
	}
	value, err := json.Marshal(directoryEntry{
		ID:        u.ID,
		UserName:  u.UserName,
		FirstName: u.FirstName,
		IsBot:     u.IsBot,
	})
	if err != nil {
		return
	}
	_ = d.cache.Set(directoryKey(u.UserName), value, d.ttl)
}

// ObserveMessage records the author, the replied-to author, and any users
// carried by text mentions in msg.
func (d *Directory) ObserveMessage(msg *tgbotapi.Message) {
	if msg == nil {
		return
	}
	d.Observe(msg.From)
	if msg.ReplyToMessage != nil {
		d.Observe(msg.ReplyToMessage.From)
	}
	for i := range msg.Entities {
		d.Observe(msg.Entities[i].User)
	}
	for i := range msg.NewChatMembers {
		d.Observe(&msg.NewChatMembers[i])
	}
}

// Len returns the number of cached users.
func (d *Directory) Len() int64 {
	return d.cache.EntryCount()
}

// LookupUser implements UserLookup.
func (d *Directory) LookupUser(_ context.Context, username string) (*tgbotapi.User, error) {
	value, err := d.cache.Get(directoryKey(username))
	if err != nil {
		return nil, ErrUserNotFound
	}
	var entry directoryEntry
	if err := json.Unmarshal(value, &entry); err != nil {
		return nil, fmt.Errorf("decode directory entry: %w", err)
	}
	return &tgbotapi.User{
		ID:        entry.ID,
		UserName:  entry.UserName,
		FirstName: entry.FirstName,
		IsBot:     entry.IsBot,
	}, nil
}

// ChatGetter is the part of the Telegram client used to resolve usernames.
type ChatGetter interface {
	GetChat(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error)
}

// TelegramLookup resolves usernames through the getChat API method. Only
// private chats are accepted, since those are the ones that are users.
type TelegramLookup struct {
	api ChatGetter
}

// NewTelegramLookup creates a lookup backed by api.
func NewTelegramLookup(api ChatGetter) *TelegramLookup {
	return &TelegramLookup{api: api}
}

// LookupUser implements UserLookup.
func (l *TelegramLookup) LookupUser(_ context.Context, username string) (*tgbotapi.User, error) {
	chat, err := l.api.GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{SuperGroupUsername: "@" + strings.TrimPrefix(username, "@")},
	})
	if err != nil {
		return nil, fmt.Errorf("get chat @%s: %w", username, err)
	}
	if !chat.IsPrivate() {
		return nil, ErrUserNotFound
	}
	return &tgbotapi.User{
		ID:        chat.ID,
		UserName:  chat.UserName,
		FirstName: chat.FirstName,
		LastName:  chat.LastName,
	}, nil
}

// Chain tries each lookup in order and returns the first user found.
type Chain []UserLookup

// LookupUser implements UserLookup.
func (c Chain) LookupUser(ctx context.Context, username string) (*tgbotapi.User, error) {
	var errs []error
	for _, l := range c {
		u, err := l.LookupUser(ctx, username)
		if err == nil && u != nil {
			return u, nil
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil, ErrUserNotFound
	}
	return nil, errors.Join(errs...)
}
