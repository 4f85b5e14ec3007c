package main

import (
	"context"

	"signal-systemv1/internal/model"
	"signal-systemv1/internal/notification"
)

// notifyPublisher forwards publishes to an optional inner publisher and
// raises alerts for the events worth interrupting a human for.
type notifyPublisher struct {
	inner    model.Publisher // may be nil
	notifier notification.Notifier
}

// chainPublisher wraps pub so alerts ride along with every publish.
func chainPublisher(pub model.Publisher, n notification.Notifier) model.Publisher {
	return &notifyPublisher{inner: pub, notifier: n}
}

func (p *notifyPublisher) PublishSignal(ctx context.Context, s model.Signal) error {
	if notification.ShouldNotify(s) {
		_ = p.notifier.Send(ctx, notification.SignalAlert(s))
	}
	if p.inner == nil {
		return nil
	}
	return p.inner.PublishSignal(ctx, s)
}

func (p *notifyPublisher) PublishEntry(ctx context.Context, e model.Entry, event string) error {
	_ = p.notifier.Send(ctx, notification.EntryAlert(e, event))
	if p.inner == nil {
		return nil
	}
	return p.inner.PublishEntry(ctx, e, event)
}

func (p *notifyPublisher) Close() error {
	if p.inner == nil {
		return nil
	}
	return p.inner.Close()
}
