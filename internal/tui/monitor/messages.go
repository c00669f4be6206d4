package monitor

import (
	"time"

	"github.com/msto63/hive/internal/gateway/handler"
)

// snapshotMsg carries one poll of the gateway
type snapshotMsg struct {
	state     handler.StateResponse
	registers handler.RegistersResponse
	at        time.Time
	err       error
}

// tickMsg drives the poll interval
type tickMsg time.Time
