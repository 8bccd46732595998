package locker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDo_SerializesSameKey(t *testing.T) {
	l := New(16)
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Do("ca-1", func() { counter++ })
		}()
	}
	wg.Wait()
	assert.Equal(t, 200, counter)
}

func TestLockUnlock(t *testing.T) {
	l := New(4)
	l.Lock("a")
	done := make(chan struct{})
	go func() {
		l.Lock("a")
		l.Unlock("a")
		close(done)
	}()
	l.Unlock("a")
	<-done
}

func TestNew_MinimumOneStripe(t *testing.T) {
	l := New(0)
	l.Do("x", func() {})
	assert.Len(t, l.stripes, 1)
}
