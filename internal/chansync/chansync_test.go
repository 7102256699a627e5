package chansync

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetOnce(t *testing.T) {
	t.Run("zero value is unset", func(t *testing.T) {
		var s SetOnce
		require.False(t, s.IsSet())
		select {
		case <-s.Done():
			t.Fatal("done channel closed before set")
		default:
		}
	})

	t.Run("only the first set reports true", func(t *testing.T) {
		var (
			s     SetOnce
			wg    sync.WaitGroup
			mu    sync.Mutex
			first int
		)

		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if s.Set() {
					mu.Lock()
					first++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		require.Equal(t, 1, first)
		require.True(t, s.IsSet())
		<-s.Done()
	})
}
