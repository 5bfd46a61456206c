package audit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from, to Status
		want     Outcome
	}{
		{StatusPending, StatusProcessing, Apply},
		{StatusPending, StatusFailed, Apply},
		{StatusProcessing, StatusCompleted, Apply},
		{StatusProcessing, StatusFailed, Apply},
		{StatusProcessing, StatusProcessing, NoOp},
		{StatusCompleted, StatusCompleted, NoOp},
		{StatusFailed, StatusFailed, NoOp},
		{StatusPending, StatusPending, Reject},
		{StatusPending, StatusCompleted, Reject},
		{StatusProcessing, StatusPending, Reject},
		{StatusCompleted, StatusProcessing, Reject},
		{StatusCompleted, StatusFailed, Reject},
		{StatusFailed, StatusCompleted, Reject},
		{StatusFailed, StatusPending, Reject},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Evaluate(tc.from, tc.to))
		})
	}
}

func TestStatusRankAndParse(t *testing.T) {
	t.Parallel()

	require.Less(t, StatusPending.Rank(), StatusProcessing.Rank())
	require.Less(t, StatusProcessing.Rank(), StatusCompleted.Rank())
	require.Equal(t, StatusCompleted.Rank(), StatusFailed.Rank())
	require.True(t, StatusFailed.Terminal())
	require.False(t, StatusProcessing.Terminal())

	s, err := ParseStatus("completed")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, s)
	_, err = ParseStatus("done")
	require.ErrorIs(t, err, ErrInvalidTransition)
}
