package client

import (
	"LiveChat/entity"
	"LiveChat/internal/lib/sl"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// NewSessionPoller polls at the interval the server announced at login.
func NewSessionPoller(api *API, session *entity.AgentSession, onChange func([]entity.Conversation), log *slog.Logger) *Poller {
	return NewPoller(api, time.Duration(session.PollSeconds)*time.Second, onChange, log)
}

// Poller is the agent dashboard's fallback when socket events are missed:
// it lists the queue and the agent's own conversations on an interval and
// reports only when something changed.
type Poller struct {
	api      *API
	interval time.Duration
	onChange func([]entity.Conversation)
	last     string
	seen     bool
	log      *slog.Logger
}

func NewPoller(api *API, interval time.Duration, onChange func([]entity.Conversation), log *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Poller{
		api:      api,
		interval: interval,
		onChange: onChange,
		log:      log.With(sl.Module("client.poller")),
	}
}

// Poll fetches once and calls onChange when the snapshot differs from the
// previous one.
func (p *Poller) Poll(ctx context.Context) (bool, error) {
	waiting, err := p.api.AgentConversations(ctx, entity.StatusWaiting)
	if err != nil {
		return false, err
	}
	own, err := p.api.AgentConversations(ctx, entity.StatusActive)
	if err != nil {
		return false, err
	}

	list := append(waiting, own...)
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

	snapshot := fingerprint(list)
	if p.seen && snapshot == p.last {
		return false, nil
	}
	p.last = snapshot
	p.seen = true
	if p.onChange != nil {
		p.onChange(list)
	}
	return true, nil
}

// Run polls immediately and then on every tick until ctx is done or the
// credentials are rejected.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		if _, err := p.Poll(ctx); err != nil {
			if errors.Is(err, entity.ErrUnauthorized) {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.log.With(sl.Err(err)).Warn("poll failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func fingerprint(list []entity.Conversation) string {
	var b strings.Builder
	for _, c := range list {
		agent := ""
		if c.Agent != nil {
			agent = c.Agent.ID
		}
		var lastAt int64
		if c.LastMessageAt != nil {
			lastAt = c.LastMessageAt.UnixNano()
		}
		fmt.Fprintf(&b, "%s|%s|%s|%d|%d|%q;", c.ID, c.Status, agent, c.UpdatedAt.UnixMilli(), lastAt, c.LastMessage)
	}
	return b.String()
}
