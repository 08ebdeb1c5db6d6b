// Package mail is the delivery collaborator of the dispatch engine. The
// core depends only on Transport; SMTP is the provided implementation.
package mail

import "context"

type Transport interface {
	// Send delivers one HTML email. The tracking pixel is already
	// embedded in body by the dispatcher.
	Send(ctx context.Context, to, subject, body string) error
}
