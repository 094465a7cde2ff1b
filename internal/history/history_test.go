package history_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/victornm/greensafari/internal/history"
)

func TestStore_Next(t *testing.T) {
	ids := []string{"fallback-geography-0", "fallback-geography-1", "fallback-geography-2"}

	tests := map[string]struct {
		arrange func(s *history.Store)
		start   int
		want    int
	}{
		"should return start when unseen": {
			arrange: func(*history.Store) {},
			start:   1,
			want:    1,
		},
		"should skip seen ids cyclically": {
			arrange: func(s *history.Store) {
				s.Add("u1", ids[2])
				s.Add("u1", ids[0])
			},
			start: 2,
			want:  1,
		},
		"should reset when every id was seen": {
			arrange: func(s *history.Store) {
				for _, id := range ids {
					s.Add("u1", id)
				}
			},
			start: 2,
			want:  0,
		},
		"should not be affected by other users": {
			arrange: func(s *history.Store) {
				s.Add("u2", ids[0])
			},
			start: 0,
			want:  0,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			s := history.NewStore()
			tt.arrange(s)

			got := s.Next("u1", ids, tt.start)
			require.Equal(t, tt.want, got)
			require.True(t, s.Seen("u1", ids[got]))
		})
	}
}

func TestStore_Next_ResetKeepsOtherCategories(t *testing.T) {
	s := history.NewStore()
	s.Add("u1", "fallback-culture-0")

	ids := []string{"fallback-geography-0", "fallback-geography-1"}
	s.Next("u1", ids, 0)
	s.Next("u1", ids, 0)
	require.Equal(t, 3, s.Len("u1"))

	require.Equal(t, 0, s.Next("u1", ids, 1))
	require.Equal(t, 2, s.Len("u1"), "only the exhausted category should be forgotten")
	require.True(t, s.Seen("u1", "fallback-culture-0"))
}

func TestStore_Next_Concurrent(t *testing.T) {
	s := history.NewStore()
	ids := []string{"a", "b", "c", "d", "e"}

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		got = make(map[int]int)
	)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			idx := s.Next("u1", ids, i)
			mu.Lock()
			got[idx]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, got, len(ids), "each concurrent caller should receive a distinct question")
	require.Equal(t, -1, s.Next("u1", nil, 0))
}
