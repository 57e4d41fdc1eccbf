package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javanstorm/qemumgr/internal/terminal"
	"github.com/javanstorm/qemumgr/internal/testutil"
	"github.com/javanstorm/qemumgr/internal/vm"
	"github.com/javanstorm/qemumgr/pkg/qemu"
)

type watchEnv struct {
	svc     *vm.Service
	store   *vm.Store
	driver  *testutil.FakeDriver
	markers *vm.MarkerStore
}

func newWatchEnv(t *testing.T) *watchEnv {
	t.Helper()

	dir := t.TempDir()
	env := &watchEnv{
		store:   vm.NewStore(dir+"/vms.json", vm.DefaultLimits()),
		driver:  testutil.NewFakeDriver(),
		markers: vm.NewMarkerStore(dir+"/run", zerolog.Nop()),
	}
	env.svc = vm.NewService(vm.ServiceOptions{
		Store:   env.store,
		Driver:  env.driver,
		Markers: env.markers,
		Config: vm.ServiceConfig{
			Host:         qemu.Host{OS: qemu.OSLinux, Binary: "qemu-system-x86_64", Accel: qemu.AccelKVM},
			StopTimeout:  50 * time.Millisecond,
			PollInterval: 10 * time.Millisecond,
		},
		Logger: zerolog.Nop(),
	})
	return env
}

// orphan leaves a VM running as if an earlier manager had started it.
func (e *watchEnv) orphan(t *testing.T, name string, pid int) *testutil.FakeHandle {
	t.Helper()

	h := e.driver.AddProcess(pid, "qemu-system-x86_64", "-name", name)
	require.NoError(t, e.markers.Write(vm.Marker{
		Name: name, PID: pid, LaunchID: vm.NewLaunchID(), StartedAt: time.Now().Add(-time.Hour),
	}))
	return h
}

func TestHandleOrphansNone(t *testing.T) {
	env := newWatchEnv(t)

	var out bytes.Buffer
	p := terminal.New(strings.NewReader(""), &out, true)
	require.NoError(t, handleOrphans(context.Background(), env.svc, p, "", &out))
	assert.Empty(t, out.String(), "nothing is asked without orphans")
}

func TestHandleOrphansAskAdopt(t *testing.T) {
	env := newWatchEnv(t)
	require.NoError(t, env.store.Create(vm.NewSpec("web", vm.DefaultDefaults())))
	env.orphan(t, "web", 4321)
	env.orphan(t, "removed", 4322)

	var out bytes.Buffer
	p := terminal.New(strings.NewReader("\n"), &out, true)
	require.NoError(t, handleOrphans(context.Background(), env.svc, p, "", &out))

	assert.Contains(t, out.String(), "Found 2 VM(s) still running")
	assert.Contains(t, out.String(), "removed (pid 4322")
	assert.Contains(t, out.String(), "(no longer defined)")
	assert.Contains(t, out.String(), "Adopted 2 VM(s)")
	assert.True(t, env.svc.Registry().IsRunning("web"))
}

func TestHandleOrphansTerminate(t *testing.T) {
	env := newWatchEnv(t)
	h := env.orphan(t, "old", 99)

	var out bytes.Buffer
	p := terminal.New(strings.NewReader("t\n"), &out, true)
	require.NoError(t, handleOrphans(context.Background(), env.svc, p, "", &out))

	assert.Contains(t, out.String(), "Terminated 1 VM(s)")
	assert.False(t, h.Alive())
	assert.False(t, env.svc.Registry().IsRunning("old"))
}

func TestHandleOrphansLeave(t *testing.T) {
	env := newWatchEnv(t)
	h := env.orphan(t, "old", 99)

	var out bytes.Buffer
	p := terminal.New(strings.NewReader(""), &out, false)
	require.NoError(t, handleOrphans(context.Background(), env.svc, p, orphanLeave, &out))

	assert.Contains(t, out.String(), "Leaving them running")
	assert.True(t, h.Alive())
	assert.False(t, env.svc.Registry().IsRunning("old"))
}

func TestHandleOrphansUnknownAction(t *testing.T) {
	env := newWatchEnv(t)
	env.orphan(t, "old", 99)

	var out bytes.Buffer
	p := terminal.New(strings.NewReader(""), &out, false)
	err := handleOrphans(context.Background(), env.svc, p, "explode", &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown orphan action "explode"`)
}

func TestSupervisorStopsVMsOnShutdown(t *testing.T) {
	env := newWatchEnv(t)
	require.NoError(t, env.store.Create(vm.NewSpec("alpha", vm.DefaultDefaults())))
	require.NoError(t, env.svc.Start(context.Background(), "alpha"))

	s := newSupervisor(env.svc, false)
	assert.Equal(t, "vm supervisor", s.Name())

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	waitRunning(t, s)
	time.Sleep(30 * time.Millisecond)
	assert.True(t, env.svc.Registry().IsRunning("alpha"))

	require.NoError(t, s.Shutdown(context.Background()))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("supervisor did not stop")
	}
	assert.False(t, env.svc.Registry().IsRunning("alpha"))
}

func TestSupervisorDetachLeavesVMsRunning(t *testing.T) {
	env := newWatchEnv(t)
	require.NoError(t, env.store.Create(vm.NewSpec("alpha", vm.DefaultDefaults())))
	require.NoError(t, env.svc.Start(context.Background(), "alpha"))

	s := newSupervisor(env.svc, true)
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	waitRunning(t, s)
	require.NoError(t, s.Shutdown(context.Background()))
	require.NoError(t, <-done)
	assert.True(t, env.svc.Registry().IsRunning("alpha"))

	require.NoError(t, env.svc.StopAll(context.Background()))
}

func waitRunning(t *testing.T, s *supervisor) {
	t.Helper()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.cancel != nil
	}, time.Second, 5*time.Millisecond)
}
