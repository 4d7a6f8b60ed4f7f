package job

import "testing"

func TestBackoffMs(t *testing.T) {
	cases := []struct {
		attempt int
		want    int64
	}{
		{0, 0},
		{1, 500},
		{2, 1000},
		{3, 2000},
		{10, 60_000}, // clamped to max
	}
	for _, c := range cases {
		got := BackoffMs(500, c.attempt, 60_000)
		if got != c.want {
			t.Errorf("BackoffMs(500, %d, 60000) = %d, want %d", c.attempt, got, c.want)
		}
	}
}
