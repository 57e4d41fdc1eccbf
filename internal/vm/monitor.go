package vm

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/digitalocean/go-qemu/qmp"
)

// monitorTimeout bounds connecting to a QMP socket.
const monitorTimeout = 2 * time.Second

// GuestStatus is the run state reported by QMP query-status.
type GuestStatus struct {
	Running bool   `json:"running"`
	Status  string `json:"status"`
}

// qmpExecute runs one QMP command against the socket at path.
func qmpExecute(path, command string) ([]byte, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoMonitor
		}
		return nil, fmt.Errorf("%w: %w", ErrNoMonitor, err)
	}

	mon, err := qmp.NewSocketMonitor("unix", path, monitorTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoMonitor, err)
	}
	if err := mon.Connect(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoMonitor, err)
	}
	defer mon.Disconnect()

	cmd, err := json.Marshal(qmp.Command{Execute: command})
	if err != nil {
		return nil, err
	}
	return mon.Run(cmd)
}

// queryStatus asks the guest for its run state.
func queryStatus(path string) (*GuestStatus, error) {
	raw, err := qmpExecute(path, "query-status")
	if err != nil {
		return nil, err
	}
	var resp struct {
		Return GuestStatus `json:"return"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("parse query-status: %w", err)
	}
	return &resp.Return, nil
}
