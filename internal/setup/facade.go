package setup

import (
	"context"
	"fmt"

	"github.com/afikmenashe/logpipe/internal/record"
)

// DefaultPrefix precedes the message of errors logged with LogError.
const DefaultPrefix = "Handled business error"

// LogError records an error the caller already handled. It never fails: if
// logging breaks, both errors go to the fallback writer.
func (s *Setup) LogError(ctx context.Context, err error, level record.Level, prefix string) {
	f := NewFailure(err, 1)
	msg := f.Message
	if prefix != "" {
		msg = prefix + ": " + msg
	}
	code := f.Code
	if c, ok := err.(interface{ StatusCode() int }); ok {
		code = c.StatusCode()
	}

	defer func() {
		if v := recover(); v != nil {
			fmt.Fprintf(s.fallback, "logpipe: LogError failed: %v\nlogpipe: original error: %s\n", v, f.Message)
		}
	}()
	lerr := s.logger.Log(ctx, level, msg, map[string]any{
		record.KeyFile:  f.File(),
		record.KeyLine:  f.Line(),
		record.KeyCode:  code,
		record.KeyTrace: f.TraceString(),
	})
	if lerr != nil {
		fmt.Fprintf(s.fallback, "logpipe: LogError failed: %v\nlogpipe: original error: %s\n", lerr, f.Message)
	}
}
