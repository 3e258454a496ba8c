package decision

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus-access-backend/internal/model"
)

func TestWindow_Check(t *testing.T) {
	scan := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	w := NewWindow(5 * time.Minute)

	denial := scan.Add(4 * time.Minute)

	testCases := []struct {
		name       string
		decisionTS *time.Time
		from, to   string
		now        time.Time
		wantErr    bool
	}{
		{
			name: "denial within window",
			from: model.StateAuthorized, to: model.StateDenied,
			now: scan.Add(4 * time.Minute),
		},
		{
			name: "denial at exact deadline",
			from: model.StateAuthorized, to: model.StateDenied,
			now: scan.Add(5 * time.Minute),
		},
		{
			name: "denial outside window",
			from: model.StateAuthorized, to: model.StateDenied,
			now: scan.Add(6 * time.Minute), wantErr: true,
		},
		{
			name:       "reversal within window of the denial",
			decisionTS: &denial,
			from:       model.StateDenied, to: model.StateAuthorized,
			now: denial.Add(4 * time.Minute),
		},
		{
			name:       "reversal outside window of the denial",
			decisionTS: &denial,
			from:       model.StateDenied, to: model.StateAuthorized,
			now: denial.Add(6 * time.Minute), wantErr: true,
		},
		{
			name: "reversal without decision timestamp falls back to scan time",
			from: model.StateDenied, to: model.StateAuthorized,
			now: scan.Add(3 * time.Minute),
		},
		{
			name: "reversal without decision timestamp, scan too old",
			from: model.StateDenied, to: model.StateAuthorized,
			now: scan.Add(10 * time.Minute), wantErr: true,
		},
		{
			name: "same-state transition is always allowed",
			from: model.StateDenied, to: model.StateDenied,
			now: scan.Add(48 * time.Hour),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := w.Check(scan, tc.decisionTS, tc.from, tc.to, tc.now)
			if tc.wantErr {
				var expired *WindowExpiredError
				require.Error(t, err)
				assert.True(t, errors.As(err, &expired))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWindow_CheckRejectsUnknownState(t *testing.T) {
	w := NewWindow(0)
	assert.Equal(t, DefaultGrace, w.Grace)

	err := w.Check(time.Now(), nil, model.StateAuthorized, "revoked", time.Now())
	assert.Error(t, err)
}

func TestWindowExpiredError_Message(t *testing.T) {
	deadline := time.Date(2024, 6, 10, 8, 5, 0, 0, time.UTC)
	err := &WindowExpiredError{Transition: "denial", Deadline: deadline}
	assert.Contains(t, err.Error(), "denial")
	assert.Contains(t, err.Error(), "2024-06-10T08:05:00Z")
}
