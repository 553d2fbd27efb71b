package bot

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/curvelaunch/botworker/internal/config"
	"github.com/curvelaunch/botworker/internal/domain"
)

const (
	// historyLimit bounds retained conversation history per end user.
	historyLimit = 10
	// contextWindow is how many recent history entries feed each prompt.
	contextWindow = 4

	apologyMessage  = "Sorry, I'm having trouble answering right now. Please try again in a moment."
	slowDownMessage = "You're sending messages a little too fast. Give me a few seconds and try again."
)

// Session bridges one token's chat transport to the response generator,
// keeping bounded per-user conversation memory.
type Session struct {
	tokenMint    string
	systemPrompt string
	transport    Transport
	gen          Generator
	limits       config.RateLimitConfig

	mu        sync.Mutex
	running   bool
	histories map[string][]string
	limiters  map[string]*rate.Limiter
}

// NewSession creates a stopped session for one token bot.
func NewSession(tokenMint string, persona domain.Persona, transport Transport, gen Generator, limits config.RateLimitConfig) *Session {
	return &Session{
		tokenMint:    tokenMint,
		systemPrompt: BuildSystemPrompt(persona),
		transport:    transport,
		gen:          gen,
		limits:       limits,
		histories:    make(map[string][]string),
		limiters:     make(map[string]*rate.Limiter),
	}
}

// TokenMint returns the token this session serves.
func (s *Session) TokenMint() string {
	return s.tokenMint
}

// Running reports whether the session's transport is started.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// UserCount returns the number of end users with conversation history.
func (s *Session) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.histories)
}

// Start wires the message handler and starts the transport. Starting a
// running session is a no-op.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		slog.Info("Bot session already running", "token", s.tokenMint)
		return nil
	}
	s.mu.Unlock()

	s.transport.OnText(s.HandleMessage)
	if err := s.transport.Start(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	slog.Info("Bot session started", "token", s.tokenMint)
	return nil
}

// Stop shuts down the transport. Stopping a stopped session is a no-op;
// transport failures are logged, never returned.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		slog.Info("Bot session already stopped", "token", s.tokenMint)
		return
	}
	s.running = false
	s.mu.Unlock()

	if err := s.transport.Stop(); err != nil {
		slog.Error("Failed to stop bot transport", "token", s.tokenMint, "error", err)
	}
	slog.Info("Bot session stopped", "token", s.tokenMint)
}

// HandleMessage processes one inbound text message. Failures never
// propagate: the user gets an apology and the error is logged.
func (s *Session) HandleMessage(ctx context.Context, userID, text string) {
	if !s.allow(userID) {
		slog.Debug("Rate limited message", "token", s.tokenMint, "user_id", userID)
		if err := s.transport.Reply(ctx, userID, slowDownMessage); err != nil {
			slog.Error("Failed to send rate limit reply", "token", s.tokenMint, "user_id", userID, "error", err)
		}
		return
	}

	s.appendHistory(userID, "User: "+text)
	contextBlock := s.contextBlock(userID)

	if err := s.transport.SendTyping(ctx, userID); err != nil {
		slog.Debug("Failed to send typing indicator", "token", s.tokenMint, "user_id", userID, "error", err)
	}

	reply, err := s.gen.Generate(ctx, text, contextBlock)
	if err != nil {
		slog.Error("Failed to generate reply", "token", s.tokenMint, "user_id", userID, "error", err)
		s.apologize(ctx, userID)
		return
	}

	s.appendHistory(userID, "Assistant: "+reply)

	if err := s.transport.Reply(ctx, userID, reply); err != nil {
		slog.Error("Failed to send reply", "token", s.tokenMint, "user_id", userID, "error", err)
		s.apologize(ctx, userID)
	}
}

func (s *Session) apologize(ctx context.Context, userID string) {
	if err := s.transport.Reply(ctx, userID, apologyMessage); err != nil {
		slog.Error("Failed to send apology", "token", s.tokenMint, "user_id", userID, "error", err)
	}
}

// appendHistory records one entry and truncates to the retention bound,
// keeping chronological order.
func (s *Session) appendHistory(userID, entry string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.histories[userID], entry)
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	s.histories[userID] = history
}

// contextBlock builds the system prompt plus the most recent history
// entries for one user. The prompt window is intentionally smaller than
// the retention bound.
func (s *Session) contextBlock(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.histories[userID]
	if len(history) > contextWindow {
		history = history[len(history)-contextWindow:]
	}
	return s.systemPrompt + "\n\n" + strings.Join(history, "\n")
}

func (s *Session) allow(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, ok := s.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(s.limits.PerMinute)/60.0), s.limits.Burst)
		s.limiters[userID] = limiter
	}
	return limiter.Allow()
}
