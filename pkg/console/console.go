// Package console sends commands to the server console over RCON around backup runs,
// so the server stops writing its world and plugin files while they are archived.
package console

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorcon/rcon"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/plog"
)

const (
	dialTimeout       = 5 * time.Second
	commandDeadline   = 30 * time.Second
	retryInitial      = 500 * time.Millisecond
	retryMaxElapsed   = 15 * time.Second
	maxLoggedResponse = 200
)

// Conn is an open console connection.
type Conn interface {
	Execute(command string) (string, error)
	Close() error
}

// DialFunc opens a console connection.
type DialFunc func(address, password string) (Conn, error)

// DialRCON connects to a Source RCON server such as the one built into Minecraft servers.
func DialRCON(address, password string) (Conn, error) {
	conn, err := rcon.Dial(address, password,
		rcon.SetDialTimeout(dialTimeout),
		rcon.SetDeadline(commandDeadline),
	)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Hook runs console commands before and after every backup run. The default commands
// switch off automatic saving, flush pending writes and switch saving back on.
type Hook struct {
	address  string
	password string
	pre      []string
	post     []string
	dial     DialFunc

	retryInitial    time.Duration
	retryMaxElapsed time.Duration
}

// NewHook creates a Hook that talks to the RCON server at address.
func NewHook(address, password string, pre, post []string) *Hook {
	return &Hook{
		address:         address,
		password:        password,
		pre:             append([]string(nil), pre...),
		post:            append([]string(nil), post...),
		dial:            DialRCON,
		retryInitial:    retryInitial,
		retryMaxElapsed: retryMaxElapsed,
	}
}

// WithDialer replaces the function used to open connections.
func (h *Hook) WithDialer(dial DialFunc) *Hook {
	h.dial = dial
	return h
}

func (h *Hook) Name() string { return "rcon" }

// BeforeRun sends the pre-run commands.
func (h *Hook) BeforeRun(ctx context.Context) error {
	return h.execute(ctx, h.pre)
}

// AfterRun sends the post-run commands.
func (h *Hook) AfterRun(ctx context.Context) error {
	return h.execute(ctx, h.post)
}

// execute sends commands in order over a single connection and stops at the first failure.
func (h *Hook) execute(ctx context.Context, commands []string) error {
	if len(commands) == 0 {
		return nil
	}

	conn, err := h.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	for _, command := range commands {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		response, err := conn.Execute(command)
		if err != nil {
			return fmt.Errorf("rcon command %q failed: %w", command, err)
		}
		plog.Info("RCON command executed", "command", command, "response", truncate(strings.TrimSpace(response), maxLoggedResponse))
	}
	return nil
}

// connect dials with exponential backoff. A rejected password is not retried.
func (h *Hook) connect(ctx context.Context) (Conn, error) {
	var conn Conn
	attempt := 0
	op := func() error {
		attempt++
		c, err := h.dial(h.address, h.password)
		if err != nil {
			if errors.Is(err, rcon.ErrAuthFailed) {
				return backoff.Permanent(err)
			}
			plog.Debug("RCON connection attempt failed", "address", h.address, "attempt", attempt, "error", err)
			return err
		}
		conn = c
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = h.retryInitial
	b.MaxElapsedTime = h.retryMaxElapsed

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("could not connect via rcon to %s after %d attempts: %w", h.address, attempt, err)
	}
	return conn, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
