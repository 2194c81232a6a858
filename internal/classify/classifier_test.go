package classify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronromeo/mailherald/pkg/base"
)

func TestClassify(t *testing.T) {
	classifier, err := New(Config{})
	require.NoError(t, err)

	receivedAt := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name      string
		msg       base.RawMessage
		wantDrop  bool
		wantEvent base.MailEvent
	}{
		{
			name: "cancellation mail yields cancelled booking",
			msg: base.RawMessage{
				Subject:    "Confirmation of cancellation",
				Body:       "Appointment for 3D Printer on 2024-05-01 at 10:00 has been cancelled",
				Sender:     "NO-REPLY@simplybook.me",
				ReceivedAt: receivedAt,
			},
			wantEvent: base.MailEvent{Booking: &base.Booking{
				Key:  base.BookingKey{Area: "3D Printer", Date: "2024-05-01", Time: "10:00"},
				Kind: base.KindCancelled,
			}},
		},
		{
			name: "confirmation mail yields booked booking",
			msg: base.RawMessage{
				Subject:    "John has booked an appointment with you",
				Body:       "A new appointment for 3D Printer at 2024-05-01 10:00",
				Sender:     "NO-REPLY@simplybook.me",
				ReceivedAt: receivedAt,
			},
			wantEvent: base.MailEvent{Booking: &base.Booking{
				Key:  base.BookingKey{Area: "3D Printer", Date: "2024-05-01", Time: "10:00"},
				Kind: base.KindBooked,
			}},
		},
		{
			name: "booking sender with unknown subject falls through to notice",
			msg: base.RawMessage{
				Subject:    "Your monthly summary",
				Body:       "Lots of bookings this month",
				Sender:     "NO-REPLY@simplybook.me",
				ReceivedAt: receivedAt,
			},
			wantEvent: base.MailEvent{Notice: &base.Notice{
				Subject: "Your monthly summary",
				Body:    "Lots of bookings this month",
				Sender:  "NO-REPLY@simplybook.me",
			}},
		},
		{
			name: "cancellation mail with garbled body is dropped",
			msg: base.RawMessage{
				Subject:    "Confirmation of cancellation",
				Body:       "something unexpected",
				Sender:     "NO-REPLY@simplybook.me",
				ReceivedAt: receivedAt,
			},
			wantDrop: true,
		},
		{
			name: "non-booking sender always yields a notice",
			msg: base.RawMessage{
				Subject:    "Hello",
				Body:       "Is the laser cutter free on Friday?",
				Sender:     "member@example.org",
				ReceivedAt: receivedAt,
			},
			wantEvent: base.MailEvent{Notice: &base.Notice{
				Subject: "Hello",
				Body:    "Is the laser cutter free on Friday?",
				Sender:  "member@example.org",
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, ok := classifier.Classify(tt.msg)

			if tt.wantDrop {
				assert.False(t, ok)
				return
			}

			require.True(t, ok)
			assert.Equal(t, tt.wantEvent, event)
		})
	}
}

func TestClassifyDeterminism(t *testing.T) {
	classifier, err := New(Config{})
	require.NoError(t, err)

	msg := base.RawMessage{
		Subject: "Confirmation of cancellation",
		Body:    "Appointment for Wood Shop on 2024-06-10 at 14:00 has been cancelled",
		Sender:  "NO-REPLY@simplybook.me",
	}

	first, firstOK := classifier.Classify(msg)
	for i := 0; i < 10; i++ {
		event, ok := classifier.Classify(msg)
		assert.Equal(t, firstOK, ok)
		assert.Equal(t, first, event)
	}
}

func TestNewRejectsInvalidRegex(t *testing.T) {
	_, err := New(Config{CancelBodyRegex: "("})
	assert.Error(t, err)

	_, err = New(Config{BookedBodyRegex: "("})
	assert.Error(t, err)
}
