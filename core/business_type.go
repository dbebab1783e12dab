package core

import (
	"fmt"
	"time"
)

// BusinessType describes one security-sensitive flow: the symbolic name used
// in request metadata, a human label (mail subject for email types), the
// store key prefix, and how long its records live. Descriptors are immutable
// values defined at process start.
type BusinessType struct {
	Name   string
	Label  string
	Prefix string
	Expiry time.Duration
	// Visual marks captcha types whose challenge is rendered as an image.
	Visual bool
}

// Key returns the store key for an id under this business type.
func (bt BusinessType) Key(id string) string {
	return bt.Prefix + id
}

// requestKey returns the rate-limit marker key for an id.
func (bt BusinessType) requestKey(id string) string {
	return bt.Prefix + "REQUEST_" + id
}

// ExpiryText renders the expiry as human-readable text for mail bodies,
// e.g. "5 minutes" or "1 minute".
func (bt BusinessType) ExpiryText() string {
	if bt.Expiry >= time.Minute && bt.Expiry%time.Minute == 0 {
		n := int(bt.Expiry / time.Minute)
		if n == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", n)
	}
	n := int(bt.Expiry / time.Second)
	if n == 1 {
		return "1 second"
	}
	return fmt.Sprintf("%d seconds", n)
}

// Captcha business types. Login/register/send-email/forgot-password return a
// rendered image; reset-password returns the raw code for out-of-band use.
var captchaTypes = []BusinessType{
	{Name: "login", Label: "login", Prefix: "LOGIN_", Expiry: 2 * time.Minute, Visual: true},
	{Name: "register", Label: "register", Prefix: "REGISTER_", Expiry: 5 * time.Minute, Visual: true},
	{Name: "send-email", Label: "send email", Prefix: "SEND_EMAIL_", Expiry: 5 * time.Minute, Visual: true},
	{Name: "forgot-password", Label: "forgot password", Prefix: "FORGOT_PASSWORD_", Expiry: 30 * time.Minute, Visual: true},
	{Name: "reset-password", Label: "reset password", Prefix: "RESET_PASSWORD_", Expiry: 30 * time.Minute},
}

// Email business types. Labels double as mail subjects.
var emailTypes = []BusinessType{
	{Name: "login", Label: "[SSSBlog] Login", Prefix: "LOGIN_", Expiry: 2 * time.Minute},
	{Name: "register", Label: "[SSSBlog] Register", Prefix: "REGISTER_", Expiry: 5 * time.Minute},
	{Name: "forgot-password", Label: "[SSSBlog] Forgot Password", Prefix: "FORGOT_PASSWORD_", Expiry: 30 * time.Minute},
	{Name: "reset-password", Label: "[SSSBlog] Reset Password", Prefix: "RESET_PASSWORD_", Expiry: 30 * time.Minute},
	{Name: "bind-email", Label: "[SSSBlog] Bind Email", Prefix: "BIND_EMAIL_", Expiry: 30 * time.Minute},
}

func typeFromName(name string, family []BusinessType) (BusinessType, error) {
	for _, bt := range family {
		if bt.Name == name {
			return bt, nil
		}
	}
	return BusinessType{}, fmt.Errorf("%w: %q", ErrUnknownBusinessType, name)
}

// CaptchaTypeFromName resolves a captcha business type by symbolic name.
func CaptchaTypeFromName(name string) (BusinessType, error) {
	return typeFromName(name, captchaTypes)
}

// EmailTypeFromName resolves an email business type by symbolic name.
func EmailTypeFromName(name string) (BusinessType, error) {
	return typeFromName(name, emailTypes)
}
