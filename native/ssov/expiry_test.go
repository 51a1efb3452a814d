package ssov

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func unix(y int, m time.Month, d, h int) int64 {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC).Unix()
}

func TestMonthlyExpiry(t *testing.T) {
	cases := []struct {
		name string
		now  int64
		want int64
	}{
		{"early in month", unix(2021, time.October, 1, 0), unix(2021, time.October, 29, 8)},
		{"on expiry rolls over", unix(2021, time.October, 29, 8), unix(2021, time.November, 26, 8)},
		{"after expiry", unix(2021, time.October, 30, 0), unix(2021, time.November, 26, 8)},
		{"month ending on friday", unix(2024, time.May, 2, 0), unix(2024, time.May, 31, 8)},
		{"december rolls into january", unix(2021, time.December, 31, 9), unix(2022, time.January, 28, 8)},
	}
	for _, tc := range cases {
		got := MonthlySchedule{}.NextExpiry(tc.now)
		require.Equal(t, tc.want, got, "%s: got %s want %s", tc.name,
			time.Unix(got, 0).UTC(), time.Unix(tc.want, 0).UTC())
	}
}

func TestWeeklyExpiry(t *testing.T) {
	// 2021-10-27 is a Wednesday.
	require.Equal(t, unix(2021, time.October, 29, 8), WeeklySchedule{}.NextExpiry(unix(2021, time.October, 27, 12)))
	// Friday after the cutoff moves to the next week.
	require.Equal(t, unix(2021, time.November, 5, 8), WeeklySchedule{}.NextExpiry(unix(2021, time.October, 29, 9)))
}

func TestParseSchedule(t *testing.T) {
	_, err := ParseSchedule("monthly", 0)
	require.NoError(t, err)
	_, err = ParseSchedule("fixed", 0)
	require.Error(t, err, "fixed without duration")
	s, err := ParseSchedule("fixed", time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 3700, s.NextExpiry(100))
	_, err = ParseSchedule("hourly", 0)
	require.Error(t, err, "unknown schedule")
}
