package analysis

import (
	"testing"

	"github.com/AlanMarvin/polytrak/internal/polymarket/dataapi"
)

func series(n int) []PnlPoint {
	out := make([]PnlPoint, n)
	for i := range out {
		out[i] = PnlPoint{Timestamp: int64(i), Pnl: float64(i)}
	}
	return out
}

func TestSample(t *testing.T) {
	tests := []struct {
		name   string
		len    int
		target int
		want   []int64
	}{
		{"shorter than target", 3, 5, []int64{0, 1, 2}},
		{"equal to target", 4, 4, []int64{0, 1, 2, 3}},
		{"even stride", 10, 4, []int64{0, 3, 6, 9}},
		{"uneven stride keeps last", 10, 3, []int64{0, 4, 9}},
		{"single point", 10, 1, []int64{9}},
		{"zero target", 10, 0, []int64{}},
		{"negative target", 10, -1, []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sample(series(tt.len), tt.target)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d points, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].Timestamp != tt.want[i] {
					t.Errorf("point %d: got %d, want %d", i, got[i].Timestamp, tt.want[i])
				}
			}
		})
	}
}

func TestSampleExactness(t *testing.T) {
	for _, n := range []int{101, 250, 997, 5000} {
		in := series(n)
		got := Sample(in, 100)
		if len(got) != 100 {
			t.Fatalf("n=%d: got %d points, want 100", n, len(got))
		}
		if got[99] != in[n-1] {
			t.Errorf("n=%d: last point %v, want %v", n, got[99], in[n-1])
		}
		for i := 1; i < len(got); i++ {
			if got[i].Timestamp <= got[i-1].Timestamp {
				t.Fatalf("n=%d: points not increasing at %d", n, i)
			}
		}
	}
}

func TestBuildHistory(t *testing.T) {
	closed := []dataapi.ClosedPosition{
		closedPos("a", "Yes", t3, 5),
		closedPos("b", "Yes", t1, 10),
		closedPos("c", "Yes", dataapi.EndDate{}, 1),
		closedPos("d", "Yes", t2, -3),
	}

	got := BuildHistory(closed, 100)

	want := []PnlPoint{
		{Timestamp: 0, Pnl: 1},
		{Timestamp: t1.Unix, Pnl: 11},
		{Timestamp: t2.Unix, Pnl: 8},
		{Timestamp: t3.Unix, Pnl: 13},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d points, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("point %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
	if closed[0].ConditionID != "a" {
		t.Error("input slice was reordered")
	}
}
