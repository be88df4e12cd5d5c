// Package bot dispatches Telegram commands: whitelist check, per-chat
// rate limit, then a fixed command table backed by the GitHub client.
package bot

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"ghrelay/internal/config"
	"ghrelay/internal/eventbus"
	"ghrelay/internal/github"
	"ghrelay/internal/ratelimit"
	"ghrelay/internal/storage"
	kit "ghrelay/internal/transport"
	logx "ghrelay/pkg/logx"
)

const (
	defaultWorkers  = 4
	handlerTimeout  = 30 * time.Second
	reposListLimit  = 10
	commitListLimit = 5
	issueListLimit  = 5
	searchListLimit = 8
)

// Request carries one inbound command through the middleware chain.
type Request struct {
	Msg     kit.Message
	Command string
	Args    []string
}

type command struct {
	name    string
	desc    string
	usage   string // reply when a required argument is missing
	minArgs int
	handle  func(ctx context.Context, req *Request) (string, error)
}

type Options struct {
	// Username is the GitHub account used when /profile and /repos are
	// called without an argument.
	Username string
	// BotName strips the /cmd@BotName suffix in group chats.
	BotName string
	Workers int
}

type Dispatcher struct {
	opts      Options
	adapter   kit.Adapter
	gh        github.Service
	store     storage.Store
	limiter   *ratelimit.Limiter
	whitelist config.Whitelist
	tunables  *config.Manager
	bus       eventbus.Bus
	log       logx.Logger
	startedAt time.Time

	table   map[string]command
	ordered []string
	handler HandlerFunc
}

func NewDispatcher(
	opts Options,
	adapter kit.Adapter,
	gh github.Service,
	store storage.Store,
	limiter *ratelimit.Limiter,
	whitelist config.Whitelist,
	tunables *config.Manager,
	bus eventbus.Bus,
	log logx.Logger,
) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{
		opts:      opts,
		adapter:   adapter,
		gh:        gh,
		store:     store,
		limiter:   limiter,
		whitelist: whitelist,
		tunables:  tunables,
		bus:       bus,
		log:       log,
		startedAt: time.Now(),
	}
	d.registerCommands()
	d.handler = Chain(d.execute,
		MWPanicRecover(log),
		MWRequestLog(log),
		MWTimeout(handlerTimeout),
	)
	return d
}

// Run consumes updates until ctx is canceled or the channel closes.
func (d *Dispatcher) Run(ctx context.Context, updates <-chan kit.Update) error {
	var wg sync.WaitGroup
	for i := 0; i < d.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case u, ok := <-updates:
					if !ok {
						return
					}
					d.dispatch(ctx, u)
				}
			}
		}()
	}
	wg.Wait()
	return nil
}

// Commands lists the command menu for the platform.
func (d *Dispatcher) Commands() []kit.BotCommand {
	out := make([]kit.BotCommand, 0, len(d.ordered))
	for _, name := range d.ordered {
		out = append(out, kit.BotCommand{Command: name, Description: d.table[name].desc})
	}
	return out
}

func (d *Dispatcher) dispatch(ctx context.Context, u kit.Update) {
	if u.Message == nil || strings.TrimSpace(u.Message.Text) == "" {
		return
	}
	msg := *u.Message
	chatID := msg.ChatID

	// Only slash commands are handled; ordinary chatter is ignored.
	if !strings.HasPrefix(strings.TrimSpace(msg.Text), "/") {
		return
	}

	if !d.whitelist.Allows(chatID) {
		d.log.Warn("unauthorized chat", logx.Int64("chat_id", chatID))
		d.publish(chatID, "", "unauthorized")
		d.reply(ctx, chatID, msgUnauthorized)
		return
	}

	if !d.limiter.Allow(chatID, time.Now()) {
		d.publish(chatID, "", "rate_limited")
		d.reply(ctx, chatID, msgRateLimited)
		return
	}

	name, args, foreign := d.parse(msg.Text)
	if foreign {
		// Addressed to another bot in the same group.
		return
	}
	cmd, known := d.table[name]
	if !known {
		d.publish(chatID, name, "unknown")
		d.reply(ctx, chatID, msgUnknownCommand)
		return
	}
	if len(args) < cmd.minArgs {
		d.publish(chatID, name, "usage")
		d.reply(ctx, chatID, cmd.usage)
		return
	}

	req := &Request{Msg: msg, Command: name, Args: args}
	err := d.handler(ctx, req)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	d.publish(chatID, name, outcome)
}

// execute is the innermost handler; replies are sent from here so the
// middleware timing covers the full round trip.
func (d *Dispatcher) execute(ctx context.Context, req *Request) error {
	text, err := d.table[req.Command].handle(ctx, req)
	if err != nil {
		d.reply(ctx, req.Msg.ChatID, userFacing(err))
		return err
	}
	if text != "" {
		d.reply(ctx, req.Msg.ChatID, text)
	}
	return nil
}

// parse splits a command line: first token is the command, lowercased,
// with the leading slash and any @BotName suffix removed. A mention of
// a different bot marks the update as foreign.
func (d *Dispatcher) parse(text string) (name string, args []string, foreign bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return "", nil, false
	}
	name = strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	if at := strings.IndexByte(name, '@'); at >= 0 {
		mention := name[at+1:]
		if d.opts.BotName != "" && !strings.EqualFold(mention, d.opts.BotName) {
			return "", nil, true
		}
		name = name[:at]
	}
	return name, fields[1:], false
}

func (d *Dispatcher) reply(ctx context.Context, chatID int64, text string) {
	sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := d.adapter.SendText(sendCtx, kit.ChatTarget{ChatID: chatID}, text, &kit.SendOptions{
		ParseMode:      "Markdown",
		DisablePreview: true,
	})
	if err != nil {
		d.log.Warn("reply send failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
}

func (d *Dispatcher) publish(chatID int64, cmd, outcome string) {
	d.bus.Publish(eventbus.Event{
		Type: eventbus.TypeCommandHandled,
		Data: eventbus.CommandData{ChatID: chatID, Command: cmd, Outcome: outcome},
	})
}

var repoPartRe = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// splitRepoPath validates and splits "owner/repo".
func splitRepoPath(path string) (owner, repo string, ok bool) {
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	if !repoPartRe.MatchString(parts[0]) || !repoPartRe.MatchString(parts[1]) {
		return "", "", false
	}
	return parts[0], parts[1], true
}
