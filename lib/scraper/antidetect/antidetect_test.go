package antidetect

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// deterministic source that replays a fixed script
type scriptedSource struct {
	ints   []int
	floats []float64
	i, f   int
}

func (s *scriptedSource) IntN(n int) int {
	v := s.ints[s.i%len(s.ints)]
	s.i++
	return v % n
}

func (s *scriptedSource) Float64() float64 {
	v := s.floats[s.f%len(s.floats)]
	s.f++
	return v
}

func TestRotationIsDeterministicGivenSource(t *testing.T) {
	pool := []string{"ua-a", "ua-b", "ua-c"}

	first := NewRotator(Options{
		UserAgents: pool,
		Source:     &scriptedSource{ints: []int{2, 0, 1}, floats: []float64{0}},
	})
	second := NewRotator(Options{
		UserAgents: pool,
		Source:     &scriptedSource{ints: []int{2, 0, 1}, floats: []float64{0}},
	})

	for i := 0; i < 3; i++ {
		require.Equal(t, first.UserAgent(), second.UserAgent())
	}
}

func TestHeadersCarryRotatedFields(t *testing.T) {
	r := NewRotator(Options{
		RotateHeaders: true,
		UserAgents:    []string{"ua-test"},
		Source:        &scriptedSource{ints: []int{0}, floats: []float64{0}},
	})

	headers := r.Headers()
	require.Equal(t, "ua-test", headers["User-Agent"])
	require.NotEmpty(t, headers["Referer"])
	require.NotEmpty(t, headers["Accept-Language"])
	require.Equal(t, "1", headers["DNT"])
}

func TestHeadersWithoutRotationHaveNoReferer(t *testing.T) {
	r := NewRotator(Options{UserAgents: []string{"ua-test"}})
	headers := r.Headers()
	require.NotContains(t, headers, "Referer")
}

func TestDelayStaysWithinWindow(t *testing.T) {
	r := NewRotator(Options{
		DelayMin: time.Millisecond * 10,
		DelayMax: time.Millisecond * 20,
		Source:   &scriptedSource{ints: []int{0}, floats: []float64{0.5}},
	})

	start := time.Now()
	err := r.Delay(context.Background())
	require.NoError(t, err)
	elapsed := time.Since(start)
	require.GreaterOrEqual(t, elapsed, time.Millisecond*10)
}

func TestDelayZeroWindowReturnsImmediately(t *testing.T) {
	r := NewRotator(Options{})
	start := time.Now()
	require.NoError(t, r.Delay(context.Background()))
	require.Less(t, time.Since(start), time.Millisecond*5)
}

func TestDelayRespectsCancellation(t *testing.T) {
	r := NewRotator(Options{
		DelayMin: time.Second * 5,
		DelayMax: time.Second * 10,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(time.Millisecond * 10)
		cancel()
	}()

	start := time.Now()
	err := r.Delay(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), time.Second)
}
