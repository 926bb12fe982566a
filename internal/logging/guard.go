// Copyright (C) 2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package logging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"
)

// CloseTimeout bounds the final flush of the logging pipeline.
const CloseTimeout = 5 * time.Second

// PanicError is returned by Guard when fn panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Guard runs fn and then always flushes and closes the active pipeline. An
// error returned by fn, or a panic, is logged once at LevelFatal through the
// logger that is active at that moment and returned to the caller.
func Guard(ctx context.Context, active *Active, msg string, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}

		logCtx := context.WithoutCancel(ctx)
		if err != nil {
			attrs := []slog.Attr{slog.Any("error", err)}
			var pe *PanicError
			if errors.As(err, &pe) {
				attrs = append(attrs, slog.String("stack", string(pe.Stack)))
			}
			active.Logger().LogAttrs(logCtx, LevelFatal, msg, attrs...)
		}

		closeCtx, cancel := context.WithTimeout(logCtx, CloseTimeout)
		defer cancel()
		if cerr := active.Close(closeCtx); cerr != nil {
			fmt.Fprintf(os.Stderr, "failed to flush logs: %v\n", cerr)
		}
	}()

	return fn(ctx)
}
