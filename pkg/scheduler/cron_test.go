package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCronWildcardMatchesEveryMinute(t *testing.T) {
	cron, err := ParseCron("* * * * *")
	require.NoError(t, err)
	require.True(t, cron.Matches(time.Date(2026, 7, 31, 13, 45, 0, 0, time.UTC)))
}

func TestCronStepAndRange(t *testing.T) {
	cron, err := ParseCron("*/15 9-17 * * MON-FRI")
	require.NoError(t, err)

	monday900 := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC) // Monday
	require.True(t, cron.Matches(monday900))

	monday905 := time.Date(2026, 8, 3, 9, 5, 0, 0, time.UTC)
	require.False(t, cron.Matches(monday905))

	saturday900 := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC) // Saturday
	require.False(t, cron.Matches(saturday900))
}

func TestCronMacroExpansion(t *testing.T) {
	cron, err := ParseCron("@daily")
	require.NoError(t, err)
	require.True(t, cron.Matches(time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)))
	require.False(t, cron.Matches(time.Date(2026, 7, 31, 0, 1, 0, 0, time.UTC)))
}

func TestCronSundayIsZero(t *testing.T) {
	cron, err := ParseCron("0 0 * * 0")
	require.NoError(t, err)
	sunday := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Sunday, sunday.Weekday())
	require.True(t, cron.Matches(sunday))
}

func TestCronNextRunTime(t *testing.T) {
	cron, err := ParseCron("30 2 * * *")
	require.NoError(t, err)
	after := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	next, ok := cron.NextRunTime(after)
	require.True(t, ok)
	require.Equal(t, time.Date(2026, 8, 1, 2, 30, 0, 0, time.UTC), next)
}

func TestCronInvalidExpressionRejected(t *testing.T) {
	_, err := ParseCron("not a cron")
	require.Error(t, err)
}
