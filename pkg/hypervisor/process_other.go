//go:build !linux && !windows

package hypervisor

func isZombie(int) bool {
	return false
}

func processArgs(int) ([]string, error) {
	return nil, ErrUnsupportedPlatform
}
