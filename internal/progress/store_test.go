package progress

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_GetUnknown(t *testing.T) {
	s := NewStore()

	_, ok := s.Get("missing")
	require.False(t, ok)
}

func TestStore_SetOverwrites(t *testing.T) {
	s := NewStore()

	s.Set("abc", Starting())
	s.Set("abc", State{Progress: 12.5, Status: StatusDownloading, Title: "My Song"})

	got, ok := s.Get("abc")
	require.True(t, ok)
	require.Equal(t, State{Progress: 12.5, Status: StatusDownloading, Title: "My Song"}, got)

	// last write wins, no merge: an empty title replaces the previous one
	s.Set("abc", State{Progress: 50, Status: StatusRetrying})

	got, _ = s.Get("abc")
	require.Equal(t, "", got.Title)
	require.Equal(t, 1, s.Len())
}

func TestStore_ChangedClosesOnSet(t *testing.T) {
	s := NewStore()
	ch := s.Changed("abc")

	select {
	case <-ch:
		t.Fatal("changed channel closed before any write")
	default:
	}

	s.Set("abc", Starting())

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("changed channel not closed after write")
	}

	require.NotEqual(t, ch, s.Changed("abc"))
}

func TestStore_ChangedIgnoresOtherIDs(t *testing.T) {
	s := NewStore()
	watched := s.Changed("watched")

	s.Set("other", Starting())
	s.Set("other", State{Progress: 10, Status: StatusDownloading})

	select {
	case <-watched:
		t.Fatal("write to another id woke the watcher")
	default:
	}

	require.Equal(t, watched, s.Changed("watched"))
}

func TestStore_SweepReleasesAbandonedWaiters(t *testing.T) {
	s := NewStore()
	abandoned := s.Changed("never-written")

	s.Sweep(time.Now())

	select {
	case <-abandoned:
	default:
		t.Fatal("waiter for an unknown id was not released")
	}

	require.Zero(t, s.Len())
}

func TestStore_Sweep(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(WithTTL(time.Minute), WithClock(func() time.Time { return now }))

	s.Set("done", State{Progress: 100, Status: StatusFinished, Title: "x"})
	s.Set("failed", State{Progress: 100, Status: StatusError})
	s.Set("running", State{Progress: 30, Status: StatusDownloading})

	require.Equal(t, 0, s.Sweep(now.Add(30*time.Second)))
	require.Equal(t, 2, s.Sweep(now.Add(2*time.Minute)))

	_, ok := s.Get("done")
	require.False(t, ok)

	_, ok = s.Get("running")
	require.True(t, ok, "non-terminal entries are never evicted")

	require.Equal(t, 0, s.Sweep(now.Add(time.Hour)))
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore()

	var wg sync.WaitGroup

	for w := 0; w < 4; w++ {
		id := fmt.Sprintf("id-%d", w)

		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := 0; i <= 100; i++ {
				s.Set(id, State{Progress: float64(i), Status: StatusDownloading})
			}
		}()

		for r := 0; r < 4; r++ {
			wg.Add(1)

			go func() {
				defer wg.Done()

				for i := 0; i < 100; i++ {
					if st, ok := s.Get(id); ok {
						assert.Equal(t, StatusDownloading, st.Status)
					}
				}
			}()
		}
	}

	wg.Wait()

	for w := 0; w < 4; w++ {
		st, ok := s.Get(fmt.Sprintf("id-%d", w))
		require.True(t, ok)
		require.Equal(t, float64(100), st.Progress)
	}
}

func TestState_JSON(t *testing.T) {
	tests := []struct {
		name  string
		state State
		want  string
	}{
		{
			name:  "unknown title is null",
			state: Starting(),
			want:  `{"progress":0,"status":"starting","title":null}`,
		},
		{
			name:  "known title",
			state: State{Progress: 42.5, Status: StatusDownloading, Title: "My Song"},
			want:  `{"progress":42.5,"status":"downloading","title":"My Song"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.state)
			require.NoError(t, err)
			require.JSONEq(t, tt.want, string(data))

			var back State
			require.NoError(t, json.Unmarshal(data, &back))
			require.Equal(t, tt.state, back)
		})
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	require.True(t, StatusFinished.IsTerminal())
	require.True(t, StatusError.IsTerminal())

	for _, s := range []Status{StatusStarting, StatusDownloading, StatusConverting, StatusRetrying} {
		require.False(t, s.IsTerminal(), s)
	}
}
