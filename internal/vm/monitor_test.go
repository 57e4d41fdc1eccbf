//go:build !windows

package vm

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveQMP answers QMP sessions on a unix socket at path. Each session gets
// the greeting, the capabilities handshake and one command, whose reply is
// taken from replies by name. Unknown commands get a CommandNotFound error.
// Executed command names are sent on the returned channel.
func serveQMP(t *testing.T, path string, replies map[string]string) <-chan string {
	t.Helper()

	l, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	got := make(chan string, 8)
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			handleQMP(conn, replies, got)
		}
	}()
	return got
}

func handleQMP(conn net.Conn, replies map[string]string, got chan<- string) {
	defer conn.Close()

	fmt.Fprintln(conn, `{"QMP":{"version":{"qemu":{"micro":0,"minor":2,"major":8},"package":""},"capabilities":[]}}`)

	dec := json.NewDecoder(conn)
	var cmd struct {
		Execute string `json:"execute"`
	}
	if err := dec.Decode(&cmd); err != nil || cmd.Execute != "qmp_capabilities" {
		return
	}
	fmt.Fprintln(conn, `{"return":{}}`)

	if err := dec.Decode(&cmd); err != nil {
		return
	}
	got <- cmd.Execute
	if reply, ok := replies[cmd.Execute]; ok {
		fmt.Fprintf(conn, "{\"return\":%s}\n", reply)
		return
	}
	fmt.Fprintf(conn, "{\"error\":{\"class\":\"CommandNotFound\",\"desc\":\"The command %s has not been found\"}}\n", cmd.Execute)
}

func TestPowerdownAndGuestStatusOverQMP(t *testing.T) {
	env := newTestEnv(t)
	env.svc.cfg.EnableQMP = true
	env.addVM(t, "debian-test")
	ctx := context.Background()
	require.NoError(t, env.svc.Start(ctx, "debian-test"))

	got := serveQMP(t, env.markers.QMPSocket("debian-test"), map[string]string{
		"system_powerdown": `{}`,
		"query-status":     `{"status":"running","singlestep":false,"running":true}`,
	})

	require.NoError(t, env.svc.Powerdown(ctx, "debian-test"))
	assert.Equal(t, "system_powerdown", <-got)
	assert.True(t, env.registry.IsRunning("debian-test"), "stays registered until the emulator exits")

	gs, err := env.svc.GuestStatus("debian-test")
	require.NoError(t, err)
	assert.Equal(t, "query-status", <-got)
	assert.True(t, gs.Running)
	assert.Equal(t, "running", gs.Status)
}

func TestPowerdownRejectedByMonitor(t *testing.T) {
	env := newTestEnv(t)
	env.svc.cfg.EnableQMP = true
	env.addVM(t, "debian-test")
	ctx := context.Background()
	require.NoError(t, env.svc.Start(ctx, "debian-test"))

	got := serveQMP(t, env.markers.QMPSocket("debian-test"), nil)

	err := env.svc.Powerdown(ctx, "debian-test")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoMonitor)
	assert.Contains(t, err.Error(), "has not been found")
	assert.Equal(t, "system_powerdown", <-got)
}
