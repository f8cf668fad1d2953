// common/safe/safe_test.go
package safe_test

import (
	"strings"
	"testing"
	"time"

	"github.com/Muritor08/TB-WSS/common/logger"
	"github.com/Muritor08/TB-WSS/common/safe"
)

func TestGo_RecoversPanic(t *testing.T) {
	errCh := make(chan error, 1)
	safe.Go(logger.Nop(), "worker", func() { panic("boom") }, func(err error) { errCh <- err })

	select {
	case err := <-errCh:
		if !strings.Contains(err.Error(), "worker") || !strings.Contains(err.Error(), "boom") {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("onPanic was not called")
	}
}

func TestGo_NoPanic(t *testing.T) {
	done := make(chan struct{})
	safe.Go(logger.Nop(), "worker", func() { close(done) }, func(err error) { t.Errorf("unexpected panic: %v", err) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
}
