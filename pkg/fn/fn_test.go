package fn

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

func TestResult_OkErr(t *testing.T) {
	r := Ok(42)
	if !r.IsOk() || r.IsErr() {
		t.Fatal("Ok result flags wrong")
	}
	v, err := r.Unwrap()
	if v != 42 || err != nil {
		t.Fatalf("Unwrap = %d, %v", v, err)
	}

	e := Err[int](errors.New("boom"))
	if e.IsOk() {
		t.Fatal("Err result should not be ok")
	}
	if e.UnwrapOr(7) != 7 {
		t.Fatal("UnwrapOr should return fallback")
	}
}

func TestCollect_FirstError(t *testing.T) {
	boom := errors.New("boom")
	r := Collect([]Result[int]{Ok(1), Err[int](boom), Ok(3)})
	if _, err := r.Unwrap(); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestThen_ShortCircuits(t *testing.T) {
	calls := 0
	first := func(_ context.Context, s string) Result[int] {
		return Errf[int]("bad input %q", s)
	}
	second := func(_ context.Context, i int) Result[string] {
		calls++
		return Ok(strconv.Itoa(i))
	}
	r := Then(first, second)(context.Background(), "x")
	if r.IsOk() || calls != 0 {
		t.Fatalf("second stage ran after error (calls=%d)", calls)
	}
}

func TestPipeline_Order(t *testing.T) {
	double := MapStage(func(i int) int { return i * 2 })
	inc := MapStage(func(i int) int { return i + 1 })
	r := Pipeline(double, inc)(context.Background(), 5)
	if v, _ := r.Unwrap(); v != 11 {
		t.Fatalf("pipeline = %d, want 11", v)
	}
}

func TestParMapResult_PreservesOrder(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8}
	results := ParMapResult(items, 3, func(i int) Result[int] { return Ok(i * i) })
	for idx, r := range results {
		if v, _ := r.Unwrap(); v != items[idx]*items[idx] {
			t.Fatalf("index %d: got %d", idx, v)
		}
	}
}

func TestParMap_BoundedWorkers(t *testing.T) {
	var active, peak atomic.Int32
	ParMap(make([]int, 20), 4, func(int) int {
		cur := active.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		active.Add(-1)
		return 0
	})
	if peak.Load() > 4 {
		t.Fatalf("peak concurrency %d exceeds worker bound", peak.Load())
	}
}

func TestRetry_EventualSuccess(t *testing.T) {
	attempts := 0
	opts := RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: time.Millisecond}
	r := Retry(context.Background(), opts, func(context.Context) Result[int] {
		attempts++
		if attempts < 3 {
			return Errf[int]("attempt %d", attempts)
		}
		return Ok(attempts)
	})
	if v, _ := r.Unwrap(); v != 3 {
		t.Fatalf("got %d attempts result", v)
	}
}

func TestUniqueBy(t *testing.T) {
	got := UniqueBy([]string{"a", "b", "A", "b"}, func(s string) string { return s })
	if len(got) != 3 {
		t.Fatalf("got %v", got)
	}
}

func TestGroupBy(t *testing.T) {
	groups := GroupBy([]int{1, 2, 3, 4}, func(i int) bool { return i%2 == 0 })
	if len(groups[true]) != 2 || len(groups[false]) != 2 {
		t.Fatalf("got %v", groups)
	}
}
