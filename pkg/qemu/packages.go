package qemu

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// versionTimeout bounds "qemu-system-* --version".
const versionTimeout = 5 * time.Second

// installCommands maps a distro family to the package manager invocation.
var installCommands = map[string]string{
	"arch":     "sudo pacman -S --noconfirm",
	"debian":   "sudo apt-get install -y",
	"fedora":   "sudo dnf install -y",
	"rhel":     "sudo yum install -y",
	"opensuse": "sudo zypper install -y",
	"macos":    "brew install",
}

// qemuPackages maps a distro family to the packages carrying the emulator
// and qemu-img.
var qemuPackages = map[string][]string{
	"arch":     {"qemu-full"},
	"debian":   {"qemu-system-x86", "qemu-utils"},
	"fedora":   {"qemu-kvm", "qemu-img"},
	"rhel":     {"qemu-kvm", "qemu-img"},
	"opensuse": {"qemu-x86", "qemu-tools"},
	"macos":    {"qemu"},
}

// distroFamilies folds derivatives onto the family whose packages they use.
var distroFamilies = map[string]string{
	"arch": "arch", "manjaro": "arch", "endeavouros": "arch",
	"debian": "debian", "ubuntu": "debian", "linuxmint": "debian", "pop": "debian",
	"fedora": "fedora",
	"rhel":   "rhel", "centos": "rhel", "rocky": "rhel", "almalinux": "rhel",
	"opensuse": "opensuse", "opensuse-leap": "opensuse", "opensuse-tumbleweed": "opensuse", "suse": "opensuse",
}

// ParseOSRelease returns the distro family named by /etc/os-release
// content, falling back to ID_LIKE for derivatives. It returns "linux" when
// nothing matches.
func ParseOSRelease(data []byte) string {
	var id, like string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			continue
		}
		value = strings.Trim(value, `"'`)
		switch key {
		case "ID":
			id = value
		case "ID_LIKE":
			like = value
		}
	}

	if family, ok := distroFamilies[id]; ok {
		return family
	}
	for _, parent := range strings.Fields(like) {
		if family, ok := distroFamilies[parent]; ok {
			return family
		}
	}
	return "linux"
}

// detectDistro returns the distro family of the running host.
func detectDistro(family OSFamily, readOSRelease func() ([]byte, error)) string {
	switch family {
	case OSDarwin:
		return "macos"
	case OSLinux:
		data, err := readOSRelease()
		if err != nil {
			return "linux"
		}
		return ParseOSRelease(data)
	default:
		return string(family)
	}
}

func readOSRelease() ([]byte, error) {
	return os.ReadFile("/etc/os-release")
}

// InstallHint returns the command that installs QEMU on distro, or "" when
// the distro is unknown.
func InstallHint(distro string) string {
	cmd, ok := installCommands[distro]
	if !ok {
		return ""
	}
	return cmd + " " + strings.Join(qemuPackages[distro], " ")
}

// Version runs "binary --version" and returns the first output line.
func Version(ctx context.Context, binary string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, binary, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("%s --version: %w", binary, err)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}
