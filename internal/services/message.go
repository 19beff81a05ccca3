package services

import (
	"fmt"
	"html"

	"docremind/internal/mailer"
	"docremind/internal/models"
)

// MessageBuilder renders the reminder email for a submitter.
type MessageBuilder interface {
	ReminderMessage(s *models.Submitter, number int) mailer.Message
}

// InvitationMessageBuilder re-sends the signing invitation as the reminder.
type InvitationMessageBuilder struct {
	BaseURL string
}

func (b InvitationMessageBuilder) ReminderMessage(s *models.Submitter, number int) mailer.Message {
	link := fmt.Sprintf("%s/s/%s", b.BaseURL, s.Slug)
	sender := s.Account.Name
	if sender == "" {
		sender = "Someone"
	}
	doc := s.Submission.Template.Name

	name := s.Name
	if name == "" {
		name = s.Email
	}

	return mailer.Message{
		To:      s.Email,
		ToName:  s.Name,
		Subject: fmt.Sprintf("%s has invited you to sign %s", sender, doc),
		PlainBody: fmt.Sprintf("Hello %s,\n\n%s has invited you to sign %s.\n\nReview and sign: %s\n",
			name, sender, doc, link),
		HTMLBody: fmt.Sprintf("<p>Hello %s,</p><p>%s has invited you to sign <strong>%s</strong>.</p><p><a href=\"%s\">Review and sign</a></p>",
			html.EscapeString(name), html.EscapeString(sender), html.EscapeString(doc), html.EscapeString(link)),
	}
}

// withSubjectPrefix prepends the configured prefix as is.
func withSubjectPrefix(msg mailer.Message, settings *models.ReminderSettings) mailer.Message {
	if settings != nil && settings.SubjectPrefix != "" {
		msg.Subject = settings.SubjectPrefix + msg.Subject
	}
	return msg
}
