// common/safe/safe.go
package safe

import (
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/Muritor08/TB-WSS/common/logger"
)

// Go запускает goroutine, паника в которой логируется и превращается
// в вызов onPanic (может быть nil) вместо падения процесса.
func Go(log *logger.Logger, name string, fn func(), onPanic func(error)) {
	go func() {
		defer Recover(log, name, onPanic)
		fn()
	}()
}

// Recover — для defer внутри уже запущенной goroutine.
func Recover(log *logger.Logger, name string, onPanic func(error)) {
	if r := recover(); r != nil {
		log.Error("panic recovered",
			zap.String("goroutine", name),
			zap.Any("panic", r),
			zap.ByteString("stack", debug.Stack()),
		)
		if onPanic != nil {
			onPanic(fmt.Errorf("%s: panic: %v", name, r))
		}
	}
}
