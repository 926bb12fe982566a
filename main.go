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

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/KimMachineGun/automemlimit/memlimit"
	gomaxecs "github.com/rdforte/gomaxecs/maxprocs"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/cardinalhq/webfrontend/cmd"
	"github.com/cardinalhq/webfrontend/internal/logging"
)

// fitToContainer sizes GOMAXPROCS and GOMEMLIMIT from the ECS task or
// cgroup limits. It runs before the serve command installs its own
// bootstrap logger, so it reports through a bootstrap logger on stderr.
func fitToContainer(logger *slog.Logger) {
	printf := func(msg string, args ...any) {
		logger.Info(fmt.Sprintf(msg, args...))
	}

	var err error
	if gomaxecs.IsECS() {
		_, err = gomaxecs.Set(gomaxecs.WithLogger(printf))
	} else {
		_, err = maxprocs.Set(maxprocs.Logger(printf))
	}
	if err != nil {
		logger.Warn("Failed to set GOMAXPROCS", slog.Any("error", err))
	}

	_, err = memlimit.SetGoMemLimitWithOpts(
		memlimit.WithRatio(0.9),
		memlimit.WithLogger(logger),
		memlimit.WithProvider(
			memlimit.ApplyFallback(
				memlimit.FromCgroup,
				memlimit.FromSystem,
			),
		),
	)
	if err != nil {
		logger.Warn("Failed to set GOMEMLIMIT", slog.Any("error", err))
	}
}

func main() {
	fitToContainer(logging.Category(logging.Bootstrap(os.Stderr).Logger(), "runtime"))
	cmd.Execute()
}
