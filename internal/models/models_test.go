package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReminderLifecycle(t *testing.T) {
	now := time.Now().UTC()
	r := &Reminder{Status: StatusPending, SendAt: now.Add(-time.Minute)}

	assert.True(t, r.Due(now))

	require.NoError(t, r.MarkSent(now))
	assert.Equal(t, StatusSent, r.Status)
	require.NotNil(t, r.SentAt)
	assert.False(t, r.Due(now))

	// Sending twice is illegal.
	assert.ErrorIs(t, r.MarkSent(now), ErrBadTransition)

	require.NoError(t, r.MarkRead(now))
	assert.Equal(t, StatusRead, r.Status)
	require.NotNil(t, r.ReadAt)

	// Reading twice is a no-op.
	firstRead := *r.ReadAt
	require.NoError(t, r.MarkRead(now.Add(time.Minute)))
	assert.Equal(t, firstRead, *r.ReadAt)

	r.Dismiss()
	assert.Equal(t, StatusDismissed, r.Status)
	assert.False(t, r.Active())

	// Dismissed is terminal.
	assert.ErrorIs(t, r.MarkRead(now), ErrDismissed)
	r.Dismiss() // no-op
	assert.Equal(t, StatusDismissed, r.Status)
}

func TestDueRequiresPending(t *testing.T) {
	now := time.Now().UTC()
	r := &Reminder{Status: StatusSent, SendAt: now.Add(-time.Hour)}
	assert.False(t, r.Due(now))

	r = &Reminder{Status: StatusPending, SendAt: now.Add(time.Hour)}
	assert.False(t, r.Due(now))
}

func TestTypeMeta(t *testing.T) {
	m, err := TypeStreakRisk.Meta()
	require.NoError(t, err)
	assert.Equal(t, "flame", m.Icon)
	assert.Equal(t, "/study/today", m.ActionRoute)

	_, err = ReminderType("bogus").Meta()
	assert.ErrorIs(t, err, ErrUnknownType)
	assert.False(t, ReminderType("bogus").Valid())
}

func TestChannelIncludesEmail(t *testing.T) {
	assert.True(t, ChannelEmail.IncludesEmail())
	assert.True(t, ChannelBoth.IncludesEmail())
	assert.False(t, ChannelInApp.IncludesEmail())
	assert.False(t, Channel("push").Valid())
}
