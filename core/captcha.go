package core

import (
	"context"
	"strings"
	"time"
)

// CaptchaService issues and consumes human-verification challenges. A
// challenge lives in the shared store under the business type's prefix plus
// the caller-supplied transaction id, moves absent -> issued -> consumed, and
// is deleted on validation no matter the outcome.
type CaptchaService struct {
	store      *Store
	guard      *RateGuard
	renderer   CaptchaRenderer
	codeLength int
	now        func() time.Time
}

func NewCaptchaService(store *Store, codeLength int) *CaptchaService {
	if codeLength <= 0 {
		codeLength = defaultCodeLength
	}
	return &CaptchaService{
		store:      store,
		guard:      NewRateGuard(store),
		renderer:   DefaultCaptchaRenderer(),
		codeLength: codeLength,
		now:        time.Now,
	}
}

// Issue generates a challenge for (typeName, transactionID). Re-issuing
// while a live challenge sits inside the throttle interval fails with
// ErrTooFrequent. Visual business types get the code rendered as a base64
// PNG data URL; the rest get the raw code for out-of-band delivery.
func (s *CaptchaService) Issue(ctx context.Context, transactionID, typeName string) (string, error) {
	bt, err := CaptchaTypeFromName(typeName)
	if err != nil {
		return "", err
	}

	frequent, err := s.guard.Frequent(ctx, bt, transactionID)
	if err != nil {
		return "", err
	}
	if frequent {
		return "", ErrTooFrequent
	}

	code := GenerateCode(s.codeLength)
	if err := s.store.SetWithTTL(ctx, bt.Key(transactionID), code, bt.Expiry); err != nil {
		return "", err
	}
	if err := s.guard.Touch(ctx, bt, transactionID); err != nil {
		return "", err
	}

	if bt.Visual {
		return s.renderer.DataURL(code, s.now().UnixNano())
	}
	return code, nil
}

// Validate consumes the challenge for (typeName, transactionID). The record
// is deleted whether or not submitted matches, so a code can be tried exactly
// once. Comparison is case-insensitive.
func (s *CaptchaService) Validate(ctx context.Context, transactionID, typeName, submitted string) error {
	bt, err := CaptchaTypeFromName(typeName)
	if err != nil {
		return err
	}

	stored, ok, err := s.store.Get(ctx, bt.Key(transactionID))
	if err != nil {
		return err
	}
	if !ok {
		return ErrChallengeExpired
	}
	if err := s.store.Delete(ctx, bt.Key(transactionID)); err != nil {
		return err
	}
	if !strings.EqualFold(stored, submitted) {
		return ErrChallengeMismatch
	}
	return nil
}
