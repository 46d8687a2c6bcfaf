package github

import (
	"context"
	"fmt"

	"github.com/devloghq/devlog/internal/model"
)

// chat fails fast: conversation storage has no issue-tracker representation.
type chat struct{}

func chatErr(op string) error {
	return fmt.Errorf("github: chat %s: %w", op, model.ErrNotImplemented)
}

func (chat) SaveSession(context.Context, *model.ChatSession) (*model.ChatSession, error) {
	return nil, chatErr("save session")
}

func (chat) GetSession(context.Context, string) (*model.ChatSession, error) {
	return nil, chatErr("get session")
}

func (chat) ListSessions(context.Context, string) ([]*model.ChatSession, error) {
	return nil, chatErr("list sessions")
}

func (chat) DeleteSession(context.Context, string) error {
	return chatErr("delete session")
}

func (chat) AppendMessage(context.Context, *model.ChatMessage) (*model.ChatMessage, error) {
	return nil, chatErr("append message")
}

func (chat) ListMessages(context.Context, string) ([]*model.ChatMessage, error) {
	return nil, chatErr("list messages")
}

func (chat) SearchMessages(context.Context, string, string) ([]*model.ChatMessage, error) {
	return nil, chatErr("search messages")
}

func (chat) LinkEntry(context.Context, *model.ChatEntryLink) error {
	return chatErr("link entry")
}

func (chat) Links(context.Context, string) ([]*model.ChatEntryLink, error) {
	return nil, chatErr("list links")
}

func (chat) ConfirmLink(context.Context, string, int64) error {
	return chatErr("confirm link")
}

func (chat) UnlinkEntry(context.Context, string, int64) error {
	return chatErr("unlink entry")
}
