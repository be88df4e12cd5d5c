package transport

import "context"

// Update is a normalized inbound message from the chat platform.
type Update struct {
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Adapter abstracts the chat transport so the dispatcher and the
// notification sender can be tested against a fake.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// BotCommand is a single entry for the platform's command menu.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface adapters can implement to
// publish the command list to the platform (Telegram setMyCommands).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
