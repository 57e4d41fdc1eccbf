package hypervisor

import (
	"fmt"
	"time"
)

// killWait bounds how long a forced kill may take to be observed.
const killWait = 5 * time.Second

// StopResult describes how a process ended.
type StopResult struct {
	// Forced is true when the graceful request timed out and the process
	// was killed.
	Forced bool

	// Elapsed is the total time spent stopping.
	Elapsed time.Duration
}

// StopGracefully asks h to exit, waits up to timeout and then kills it.
// A timeout is not an error: the caller sees Forced in the result. An error
// is returned only when the process cannot be confirmed dead.
func StopGracefully(h Handle, timeout time.Duration) (StopResult, error) {
	start := time.Now()
	result := StopResult{}

	if !h.Alive() {
		return result, nil
	}

	// A failed request still falls through to the kill below.
	_ = h.Terminate()
	if h.Wait(timeout) {
		result.Elapsed = time.Since(start)
		return result, nil
	}

	result.Forced = true
	killErr := h.Kill()
	exited := h.Wait(killWait)
	result.Elapsed = time.Since(start)

	if !exited {
		if killErr != nil {
			return result, fmt.Errorf("%w: pid %d: %w", ErrStillAlive, h.PID(), killErr)
		}
		return result, fmt.Errorf("%w: pid %d", ErrStillAlive, h.PID())
	}

	return result, nil
}
