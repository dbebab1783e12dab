package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// Consumer retry defaults.
const (
	DefaultMailMaxAttempts = 3
	DefaultMailBackoff     = time.Second
)

// PermanentMailError marks a transport failure that retrying cannot fix,
// e.g. the transport rejecting our credentials.
type PermanentMailError struct {
	Err error
}

func (e *PermanentMailError) Error() string { return "permanent mail failure: " + e.Err.Error() }
func (e *PermanentMailError) Unwrap() error { return e.Err }

// FatalClassifier decides whether a transport error should stop retries.
type FatalClassifier func(error) bool

// DefaultFatalClassifier treats PermanentMailError values as fatal.
func DefaultFatalClassifier(err error) bool {
	var p *PermanentMailError
	return errors.As(err, &p)
}

// MailConsumer transmits queued messages with bounded retries and a fixed
// backoff between attempts. Fatal errors stop retrying immediately and are
// logged for operator attention; non-fatal errors exhaust the budget before
// the message is logged and dropped. One message's failure never blocks the
// next.
type MailConsumer struct {
	mailer      Mailer
	maxAttempts int
	backoff     time.Duration
	isFatal     FatalClassifier
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewMailConsumer(mailer Mailer, maxAttempts int, backoff time.Duration, classifier FatalClassifier) *MailConsumer {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMailMaxAttempts
	}
	if backoff <= 0 {
		backoff = DefaultMailBackoff
	}
	if classifier == nil {
		classifier = DefaultFatalClassifier
	}
	return &MailConsumer{
		mailer:      mailer,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		isFatal:     classifier,
		sleep:       sleepCtx,
	}
}

// Deliver attempts transmission of msg, returning how many attempts were
// made and the final error, nil on success.
func (c *MailConsumer) Deliver(ctx context.Context, msg MailMessage) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		err := c.mailer.Send(ctx, msg)
		if err == nil {
			log.Printf("mail %s delivered to %s (attempt %d)", msg.ID, msg.To, attempt)
			return attempt, nil
		}
		lastErr = err

		if c.isFatal(err) {
			log.Printf("mail %s to %s failed fatally, not retrying: %v", msg.ID, msg.To, err)
			return attempt, err
		}
		if attempt < c.maxAttempts {
			if serr := c.sleep(ctx, c.backoff); serr != nil {
				return attempt, serr
			}
		}
	}

	log.Printf("mail %s to %s dropped after %d attempts: %v", msg.ID, msg.To, c.maxAttempts, lastErr)
	return c.maxAttempts, fmt.Errorf("retries exhausted: %w", lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
