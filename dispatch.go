package scribe

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Channel names an out-of-band delivery channel for codes and links.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPhone Channel = "phone"
)

// ValidChannel reports whether a client-supplied verification method names
// a supported channel.
func ValidChannel(method string) bool {
	return method == string(ChannelEmail) || method == string(ChannelPhone)
}

// Dispatcher delivers one-time codes and reset links out of band. The
// implementations are external collaborators; the auth flows only rely on
// the error result to decide whether a persisted code remains retryable.
type Dispatcher interface {
	// SendCode delivers a verification code over the chosen channel.
	SendCode(ctx context.Context, channel Channel, u *User, code int) error

	// SendResetLink emails a password-reset link containing the plaintext
	// reset token.
	SendResetLink(ctx context.Context, email, link string) error
}

// EmailSender hands a rendered message to a mail transport.
type EmailSender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SMSSender hands a text message to a telephony provider.
type SMSSender interface {
	Send(ctx context.Context, to, body string) error
}

// MessagingDispatcher routes codes to email or SMS transports.
type MessagingDispatcher struct {
	Email  EmailSender
	SMS    SMSSender
	Logger *zap.Logger
}

func (d *MessagingDispatcher) SendCode(ctx context.Context, channel Channel, u *User, code int) error {
	switch channel {
	case ChannelEmail:
		if d.Email == nil {
			return E(KindInternal, "Email delivery is not configured.")
		}
		return d.Email.Send(ctx, u.Email, "Your Verification Code", CodeEmailTemplate(code))
	case ChannelPhone:
		if d.SMS == nil {
			return E(KindInternal, "SMS delivery is not configured.")
		}
		// Digits are spaced out so voice assistants read them one by one.
		spaced := strings.Join(strings.Split(fmt.Sprint(code), ""), " ")
		return d.SMS.Send(ctx, u.Phone, fmt.Sprintf("Your verification code is %s", spaced))
	default:
		return E(KindValidation, "Invalid verification method. Supported: 'email' or 'phone'.")
	}
}

func (d *MessagingDispatcher) SendResetLink(ctx context.Context, email, link string) error {
	if d.Email == nil {
		return E(KindInternal, "Email delivery is not configured.")
	}
	body := fmt.Sprintf(
		"Your Reset Password Token is:<br/><br/><a href=%q>%s</a><br/><br/>If you have not requested this email then please ignore it.",
		link, link)
	return d.Email.Send(ctx, email, "Scribe password reset", body)
}

// CodeEmailTemplate renders the verification-code email body.
func CodeEmailTemplate(code int) string {
	return fmt.Sprintf(`
    <div style="font-family: Arial, sans-serif;">
      <h2>Verification Code</h2>
      <p>Your verification code is: <strong>%d</strong></p>
      <p>Please use this code to verify your account. It expires in 10 minutes.</p>
    </div>
  `, code)
}

// ConsoleDispatcher is a development implementation that logs instead of
// sending anything.
type ConsoleDispatcher struct {
	Logger *zap.Logger
}

func (d *ConsoleDispatcher) SendCode(ctx context.Context, channel Channel, u *User, code int) error {
	d.Logger.Info("dispatching verification code",
		zap.String("channel", string(channel)),
		zap.String("email", u.Email),
		zap.String("phone", u.Phone),
		zap.Int("code", code))
	return nil
}

func (d *ConsoleDispatcher) SendResetLink(ctx context.Context, email, link string) error {
	d.Logger.Info("dispatching password reset link",
		zap.String("email", email),
		zap.String("link", link))
	return nil
}
