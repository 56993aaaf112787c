package document

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition_HappyPath(t *testing.T) {
	s := PendingState()
	require.NoError(t, s.Validate())

	s, err := Transition(s, Start())
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, s.Status)
	require.NoError(t, s.Validate())

	doneAt := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s, err = Transition(s, Succeed(doneAt))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, s.Status)
	require.NotNil(t, s.ProcessedAt)
	assert.Equal(t, doneAt, *s.ProcessedAt)
	assert.Nil(t, s.ProcessingError)
	require.NoError(t, s.Validate())
}

func TestTransition_FailureRecordsErrorAndRetryClearsIt(t *testing.T) {
	s, err := Transition(PendingState(), Start())
	require.NoError(t, err)

	s, err = Transition(s, Fail(errors.New("corrupt pdf")))
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, s.Status)
	require.NotNil(t, s.ProcessingError)
	assert.Equal(t, "corrupt pdf", *s.ProcessingError)
	assert.Nil(t, s.ProcessedAt)
	require.NoError(t, s.Validate())

	// リトライ時は failed から processing に戻り、エラーはクリアされる
	s, err = Transition(s, Start())
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, s.Status)
	assert.Nil(t, s.ProcessingError)
}

func TestTransition_FailWithoutMessage(t *testing.T) {
	s, err := Transition(State{Status: StatusProcessing}, Fail(nil))
	require.NoError(t, err)
	require.NotNil(t, s.ProcessingError)
	assert.NotEmpty(t, *s.ProcessingError)
}

func TestTransition_DoesNotMutateInput(t *testing.T) {
	msg := "boom"
	cur := State{Status: StatusFailed, ProcessingError: &msg}

	next, err := Transition(cur, Start())
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, cur.Status)
	assert.Equal(t, "boom", *cur.ProcessingError)
	assert.Equal(t, StatusProcessing, next.Status)
}

func TestTransition_Rejected(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		cur     State
		ev      Event
		wantErr error
	}{
		{
			name:    "completed からの再処理",
			cur:     State{Status: StatusCompleted, ProcessedAt: &now},
			ev:      Start(),
			wantErr: ErrAlreadyProcessed,
		},
		{
			name:    "pending から直接 completed",
			cur:     PendingState(),
			ev:      Succeed(now),
			wantErr: ErrInvalidTransition,
		},
		{
			name:    "pending から直接 failed",
			cur:     PendingState(),
			ev:      Fail(errors.New("x")),
			wantErr: ErrInvalidTransition,
		},
		{
			name:    "completed から failed",
			cur:     State{Status: StatusCompleted, ProcessedAt: &now},
			ev:      Fail(errors.New("x")),
			wantErr: ErrInvalidTransition,
		},
		{
			name:    "未知のイベント",
			cur:     State{Status: StatusProcessing},
			ev:      Event{Kind: "rewind"},
			wantErr: ErrInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := Transition(tt.cur, tt.ev)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.cur, next)
		})
	}
}

func TestState_Validate(t *testing.T) {
	msg := "err"
	now := time.Now()

	assert.Error(t, State{Status: "archived"}.Validate())
	assert.Error(t, State{Status: StatusFailed}.Validate())
	assert.Error(t, State{Status: StatusPending, ProcessingError: &msg}.Validate())
	assert.Error(t, State{Status: StatusCompleted}.Validate())
	assert.Error(t, State{Status: StatusProcessing, ProcessedAt: &now}.Validate())
	assert.NoError(t, State{Status: StatusFailed, ProcessingError: &msg}.Validate())
}
