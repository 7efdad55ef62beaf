// Package notify renders and sends the emails that follow a submission.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

type Settings struct {
	SiteName     string
	AdminEmail   string
	AdminSubject string
	UserSubject  string
}

type Notifier struct {
	mailer   Mailer
	settings Settings
}

func NewNotifier(mailer Mailer, settings Settings) *Notifier {
	if settings.AdminSubject == "" {
		settings.AdminSubject = "New Survey Submission"
	}
	if settings.UserSubject == "" {
		settings.UserSubject = "Thank you for your survey response"
	}
	return &Notifier{mailer, settings}
}

// Notify sends the admin notice, if an admin address is set, and the
// respondent confirmation. Both are attempted; their failures are combined.
func (n *Notifier) Notify(ctx context.Context, r Report) error {
	if r.SiteName == "" {
		r.SiteName = n.settings.SiteName
	}

	var result *multierror.Error

	if n.settings.AdminEmail != "" {
		html, err := RenderAdmin(r)
		if err == nil {
			err = n.mailer.Send(ctx, Message{
				To:      n.settings.AdminEmail,
				Subject: fmt.Sprintf("%s: %s", n.settings.AdminSubject, r.Survey.Title),
				HTML:    html,
			})
		}
		if err != nil {
			result = multierror.Append(result, errors.Wrap(err, "admin notice"))
		}
	}

	html, err := RenderUser(r)
	if err == nil {
		err = n.mailer.Send(ctx, Message{
			To:      r.Submission.UserEmail,
			Subject: n.settings.UserSubject,
			HTML:    html,
		})
	}
	if err != nil {
		result = multierror.Append(result, errors.Wrap(err, "user confirmation"))
	}

	return result.ErrorOrNil()
}

// SendTest sends a test email to the given address, or to the admin address
// when to is empty.
func (n *Notifier) SendTest(ctx context.Context, to string) error {
	if to == "" {
		to = n.settings.AdminEmail
	}
	if to == "" {
		return errors.New("no recipient for test email")
	}

	html, err := RenderTest(n.settings.SiteName, time.Now())
	if err != nil {
		return err
	}
	return n.mailer.Send(ctx, Message{
		To:      to,
		Subject: fmt.Sprintf("%s: test email", n.settings.SiteName),
		HTML:    html,
	})
}
