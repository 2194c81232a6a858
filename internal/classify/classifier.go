// Package classify turns normalized mail records into typed mail events.
package classify

import (
	"regexp"
	"strings"

	"github.com/aaronromeo/mailherald/pkg/base"
	"github.com/pkg/errors"
)

// Default patterns match the booking provider's real mail grammar.
const (
	DefaultBookingSender = "NO-REPLY@simplybook.me"
	DefaultCancelSubject = "Confirmation of cancellation"
	DefaultBookedSubject = "has booked an appointment with"
	DefaultCancelBody    = `Appointment for (.*) on ([0-9\-]*) at (\d\d:\d\d) has been cancelled`
	DefaultBookedBody    = `for (.*) at ([0-9\-]*) (\d\d:\d\d)`
)

// Classifier classifies raw messages. It holds only compiled patterns and
// is safe for concurrent use.
type Classifier struct {
	bookingSender string
	cancelSubject string
	bookedSubject string
	cancelBody    *regexp.Regexp
	bookedBody    *regexp.Regexp
}

// Config carries the classifier patterns. Empty fields fall back to the
// provider defaults.
type Config struct {
	BookingSender   string
	CancelSubject   string
	BookedSubject   string
	CancelBodyRegex string
	BookedBodyRegex string
}

// New compiles the configured patterns into a Classifier.
func New(cfg Config) (*Classifier, error) {
	if cfg.BookingSender == "" {
		cfg.BookingSender = DefaultBookingSender
	}
	if cfg.CancelSubject == "" {
		cfg.CancelSubject = DefaultCancelSubject
	}
	if cfg.BookedSubject == "" {
		cfg.BookedSubject = DefaultBookedSubject
	}
	if cfg.CancelBodyRegex == "" {
		cfg.CancelBodyRegex = DefaultCancelBody
	}
	if cfg.BookedBodyRegex == "" {
		cfg.BookedBodyRegex = DefaultBookedBody
	}

	cancelBody, err := regexp.Compile(cfg.CancelBodyRegex)
	if err != nil {
		return nil, errors.Wrap(err, "compiling cancellation body regex")
	}
	bookedBody, err := regexp.Compile(cfg.BookedBodyRegex)
	if err != nil {
		return nil, errors.Wrap(err, "compiling booking body regex")
	}

	return &Classifier{
		bookingSender: cfg.BookingSender,
		cancelSubject: cfg.CancelSubject,
		bookedSubject: cfg.BookedSubject,
		cancelBody:    cancelBody,
		bookedBody:    bookedBody,
	}, nil
}

// Classify maps one raw message to a typed event. The second return value
// is false when the message is dropped (a booking-system mail whose body
// failed extraction). Classification is a pure function of the record.
func (c *Classifier) Classify(msg base.RawMessage) (base.MailEvent, bool) {
	if strings.Contains(msg.Sender, c.bookingSender) {
		switch {
		case strings.Contains(msg.Subject, c.cancelSubject):
			return c.extract(c.cancelBody, msg, base.KindCancelled)
		case strings.Contains(msg.Subject, c.bookedSubject):
			return c.extract(c.bookedBody, msg, base.KindBooked)
		}
	}

	return base.MailEvent{Notice: &base.Notice{
		Subject: msg.Subject,
		Body:    msg.Body,
		Sender:  msg.Sender,
	}}, true
}

func (c *Classifier) extract(re *regexp.Regexp, msg base.RawMessage, kind base.BookingKind) (base.MailEvent, bool) {
	match := re.FindStringSubmatch(msg.Body)
	if match == nil {
		return base.MailEvent{}, false
	}
	key := base.BookingKey{Area: match[1], Date: match[2], Time: match[3]}
	if key.Area == "" || key.Date == "" || key.Time == "" {
		return base.MailEvent{}, false
	}
	return base.MailEvent{Booking: &base.Booking{Key: key, Kind: kind}}, true
}
