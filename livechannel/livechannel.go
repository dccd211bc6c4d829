// Package livechannel defines the transport interface for long-lived
// server-push subscriptions (notifications, attendance, work-mode topics).
package livechannel

import "context"

// Event is a single message delivered on a topic. Payload is opaque to the
// coordinator; consumers decode it.
type Event struct {
	Topic   string
	Payload []byte
}

// Filter narrows a subscription server-side, typically to the current
// subject's rows.
type Filter struct {
	Column string
	Equals string
}

// OnEvent receives topic events.
type OnEvent func(Event)

// OnError receives subscription-level failures. A failing channel never
// tears down its siblings; errors are reported to whoever registered the
// subscription.
type OnError func(error)

// Handle is an open subscription. Close is idempotent.
type Handle interface {
	Topic() string
	Close()
}

// Provider opens live-update subscriptions.
type Provider interface {
	Subscribe(ctx context.Context, topic string, filter *Filter, onEvent OnEvent, onError OnError) (Handle, error)
}
