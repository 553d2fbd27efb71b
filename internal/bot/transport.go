// Package bot keeps per-token chat bot sessions in sync with the
// registry and bridges their transports to the response generator.
package bot

import "context"

// TextHandler is invoked for each inbound text message. userID is the
// transport-scoped end-user identifier (a chat ID for Telegram).
type TextHandler func(ctx context.Context, userID, text string)

// Transport is one bot's connection to its chat platform. Implementations
// must make Stop safe to call on a transport that never started.
type Transport interface {
	// OnText registers the inbound message handler. Must be called
	// before Start.
	OnText(handler TextHandler)

	// Start begins receiving updates. The transport stops delivering
	// messages when ctx is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop shuts down update delivery.
	Stop() error

	// Reply sends a text message to an end user.
	Reply(ctx context.Context, userID, text string) error

	// SendTyping shows a typing indicator to an end user. Best effort.
	SendTyping(ctx context.Context, userID string) error
}

// TransportFactory builds a transport from a decrypted bot credential.
// The Reloader uses it so tests can substitute fakes for the Telegram
// implementation.
type TransportFactory func(credential string) (Transport, error)

// Generator produces an assistant reply for a user message and a
// persona/history context block.
type Generator interface {
	Generate(ctx context.Context, userMessage, contextBlock string) (string, error)
}
