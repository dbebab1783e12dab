package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// MailMessage is the unit of work handed to the mail queue. Owned by the
// queue until a consumer claims it; gone after successful transmission or
// retry exhaustion.
type MailMessage struct {
	ID      string    `json:"id"`
	To      string    `json:"to"`
	From    string    `json:"from"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	HTML    bool      `json:"html"`
	SentAt  time.Time `json:"sent_at"`
}

// Mailer is the external mail-transport collaborator.
type Mailer interface {
	Send(ctx context.Context, msg MailMessage) error
}

// MailService is the notification dispatcher: it validates recipient
// eligibility, generates and persists a one-time code, and publishes the
// rendered message to the durable queue. Transmission happens out-of-band in
// the consumer.
type MailService struct {
	users      UserDirectory
	store      *Store
	queue      MailPublisher
	from       string
	codeLength int
	now        func() time.Time
}

func NewMailService(users UserDirectory, store *Store, queue MailPublisher, from string) *MailService {
	return &MailService{
		users:      users,
		store:      store,
		queue:      queue,
		from:       from,
		codeLength: defaultCodeLength,
		now:        time.Now,
	}
}

// Send queues a verification email for recipient under the named email
// business type. Every type except "register" requires the recipient to be a
// known account, so the mail system cannot be used as an account-existence
// oracle for unrelated flows while password-reset still demands a real
// account. A publish failure rolls back the just-written code so no valid
// code exists without a notification on its way.
func (s *MailService) Send(ctx context.Context, recipient, typeName string) error {
	bt, err := EmailTypeFromName(typeName)
	if err != nil {
		return err
	}

	if bt.Name != "register" {
		if _, err := s.users.FindByEmail(ctx, recipient); err != nil {
			if errors.Is(err, ErrIdentityNotFound) {
				return ErrRecipientNotRegistered
			}
			return err
		}
	}

	code := GenerateCode(s.codeLength)
	key := bt.Key(recipient)
	if err := s.store.SetWithTTL(ctx, key, code, bt.Expiry); err != nil {
		return err
	}

	msg := MailMessage{
		ID:      uuid.NewString(),
		To:      recipient,
		From:    s.from,
		Subject: bt.Label,
		Body:    mailBody(code, bt.ExpiryText(), s.now().Format("2006-01-02 15:04:05")),
		HTML:    true,
		SentAt:  s.now(),
	}
	if err := s.queue.Publish(ctx, msg); err != nil {
		_ = s.store.Delete(ctx, key)
		log.Printf("mail dispatch for %s (%s) failed: %v", recipient, bt.Name, err)
		return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}

	log.Printf("queued %q mail to %s", bt.Label, recipient)
	return nil
}

// mailBody renders the fixed verification template. validFor is the
// human-readable expiry span, timestamp the send time.
func mailBody(code, validFor, timestamp string) string {
	return fmt.Sprintf(`<h3><span style="font-size:16px;">Dear user,</span></h3>
<p>
  <span style="font-size:16px;">You are verifying your email address. The verification code for this request is:
  <span style="font-size:24px;color:#FFE500;"> %s </span>.
  It is valid for %s; please complete the verification within %s.
  Do not share this code with anyone. If you did not request it, please ignore this mail.
  (This is an automated message, do not reply.)</span>
</p>
<p style="text-align:right;"><span style="font-size:16px;">SSSBlog</span></p>
<p style="text-align:right;"><span style="font-size:16px;">%s</span></p>`,
		code, validFor, validFor, timestamp)
}
