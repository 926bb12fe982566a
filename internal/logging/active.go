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
	"sync/atomic"

	"github.com/cardinalhq/webfrontend/internal/otelconfig"
)

var ErrAlreadyReplaced = errors.New("bootstrap logger has already been replaced")

// Active holds the process logger. It starts out with the bootstrap
// pipeline and is replaced exactly once by the final pipeline. Every
// installed pipeline also becomes slog.Default, which routes the standard
// library log package through it as well.
type Active struct {
	current  atomic.Pointer[Pipeline]
	replaced atomic.Bool
}

// NewActive installs bootstrap as the process logger.
func NewActive(bootstrap *Pipeline) *Active {
	a := &Active{}
	a.current.Store(bootstrap)
	slog.SetDefault(bootstrap.Logger())
	return a
}

func (a *Active) Pipeline() *Pipeline { return a.current.Load() }

func (a *Active) Logger() *slog.Logger { return a.current.Load().Logger() }

// Configured reports whether the final pipeline has been installed.
func (a *Active) Configured() bool {
	return a.current.Load().Stage() == StageFinal
}

// Replace installs p and discards the previous pipeline.
func (a *Active) Replace(ctx context.Context, p *Pipeline) error {
	if p == nil {
		return errors.New("cannot install a nil logging pipeline")
	}
	if !a.replaced.CompareAndSwap(false, true) {
		return ErrAlreadyReplaced
	}
	old := a.current.Swap(p)
	slog.SetDefault(p.Logger())
	if old != nil {
		if err := old.Close(ctx); err != nil {
			p.Logger().Warn("Failed to close bootstrap logger", slog.Any("error", err))
		}
	}
	return nil
}

// Close flushes and closes whichever pipeline is active.
func (a *Active) Close(ctx context.Context) error {
	return a.current.Load().Close(ctx)
}

// Configure runs the second stage: it builds the final pipeline from
// settings and makes it the active logger.
func Configure(ctx context.Context, active *Active, settings Settings, otlp otelconfig.Config, opts ...Option) (*Pipeline, error) {
	active.Logger().InfoContext(ctx, "App service name", slog.String("name", otlp.ServiceNameOrDefault()))

	p, err := Build(ctx, settings, otlp, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	if err := active.Replace(ctx, p); err != nil {
		_ = p.Close(ctx)
		return nil, err
	}
	return p, nil
}
