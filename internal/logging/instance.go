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
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sony/sonyflake"
)

// InstanceID identifies this process in every record of the final logger.
// It increases roughly in start-time order across restarts.
var InstanceID = sync.OnceValue(func() int64 {
	sf, err := sonyflake.New(sonyflake.Settings{
		StartTime: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil || sf == nil {
		return rand.Int64()
	}
	id, err := sf.NextID()
	if err != nil {
		return rand.Int64()
	}
	return int64(id)
})
