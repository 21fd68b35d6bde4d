package mailer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/studyloop/reminder-service/internal/models"
)

func TestRender(t *testing.T) {
	job := &models.EmailJob{
		To:          "u1@example.com",
		Subject:     "Your streak is at risk",
		Title:       "Your 4-day streak is at risk",
		Message:     "Study today to keep it.",
		ActionURL:   "/study/today",
		StreakCount: 4,
	}
	msg := Render("noreply@studyloop.app", job)

	assert.Contains(t, msg, "From: noreply@studyloop.app\r\n")
	assert.Contains(t, msg, "To: u1@example.com\r\n")
	assert.Contains(t, msg, "Subject: Your streak is at risk\r\n")
	assert.Contains(t, msg, "Study today to keep it.")
	assert.Contains(t, msg, "Current streak: 4 days")
	assert.Contains(t, msg, "Open: /study/today")
}

func TestRender_NoStreakLine(t *testing.T) {
	job := &models.EmailJob{
		To:      "u1@example.com",
		Subject: "s",
		Title:   "t",
		Message: "m",
	}
	msg := Render("noreply@studyloop.app", job)
	assert.NotContains(t, msg, "Current streak")
}
