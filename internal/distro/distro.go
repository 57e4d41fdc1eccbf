// Package distro recognizes guest operating systems from image names.
package distro

import (
	"fmt"
	"strings"
)

// ID identifies a guest distribution.
type ID string

const (
	Alpine    ID = "alpine"
	Ubuntu    ID = "ubuntu"
	ArchLinux ID = "arch"
	Debian    ID = "debian"
	Fedora    ID = "fedora"
	Rocky     ID = "rocky"
	OpenSUSE  ID = "opensuse"
	Windows   ID = "windows"
	FreeBSD   ID = "freebsd"
	OpenBSD   ID = "openbsd"
	MacOS     ID = "macos"
	Solaris   ID = "solaris"
)

// Family is the OS hint stored with a VM.
type Family string

const (
	FamilyLinux   Family = "Linux"
	FamilyWindows Family = "Windows"
	FamilyMacOS   Family = "macOS"
	FamilyBSD     Family = "BSD"
	FamilySolaris Family = "Solaris"
	FamilyOther   Family = "Other"
)

// Families lists the OS hints offered to users, most common first.
var Families = []Family{FamilyLinux, FamilyWindows, FamilyMacOS, FamilyBSD, FamilySolaris, FamilyOther}

// Distro describes one recognizable guest.
type Distro struct {
	ID     ID
	Name   string
	Family Family

	// Keywords are matched against the words of an image name. The ID
	// itself always matches.
	Keywords []string
}

// matches reports whether any word is the ID or a keyword.
func (d Distro) matches(words []string) bool {
	for _, w := range words {
		if w == string(d.ID) {
			return true
		}
		for _, k := range d.Keywords {
			if w == k {
				return true
			}
		}
	}
	return false
}

// words splits an image name into lower-case alphabetic runs, so
// "Win10_x64" yields "win", "x".
func words(name string) []string {
	return strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r < 'a' || r > 'z'
	})
}

// Detect returns the distro whose ID or keyword appears in name.
func Detect(name string) (Distro, bool) {
	w := words(name)
	for _, d := range ListDistros() {
		if d.matches(w) {
			return d, true
		}
	}
	return Distro{}, false
}

// Hint returns the OS family for an image name, defaulting to Linux, the
// common case for qcow2 images.
func Hint(name string) Family {
	if d, ok := Detect(name); ok {
		return d.Family
	}
	return FamilyLinux
}

// ParseHint resolves a user-supplied OS hint. A family name matches in any
// case; a registered distro ID resolves to its family.
func ParseHint(s string) (Family, error) {
	for _, f := range Families {
		if strings.EqualFold(s, string(f)) {
			return f, nil
		}
	}
	d, err := Get(ID(strings.ToLower(s)))
	if err != nil {
		return "", fmt.Errorf("OS hint %q is neither a family (%v) nor a distro: %w", s, Families, err)
	}
	return d.Family, nil
}

func init() {
	for _, d := range []Distro{
		{ID: Alpine, Name: "Alpine Linux", Family: FamilyLinux},
		{ID: Ubuntu, Name: "Ubuntu", Family: FamilyLinux, Keywords: []string{"kubuntu", "xubuntu", "lubuntu"}},
		{ID: ArchLinux, Name: "Arch Linux", Family: FamilyLinux, Keywords: []string{"archlinux", "manjaro"}},
		{ID: Debian, Name: "Debian", Family: FamilyLinux, Keywords: []string{"bookworm", "bullseye", "trixie"}},
		{ID: Fedora, Name: "Fedora", Family: FamilyLinux, Keywords: []string{"centos", "rhel"}},
		{ID: Rocky, Name: "Rocky Linux", Family: FamilyLinux, Keywords: []string{"alma", "almalinux"}},
		{ID: OpenSUSE, Name: "openSUSE", Family: FamilyLinux, Keywords: []string{"suse", "sles", "tumbleweed", "leap"}},
		{ID: Windows, Name: "Windows", Family: FamilyWindows, Keywords: []string{"win", "winxp", "winserver"}},
		{ID: FreeBSD, Name: "FreeBSD", Family: FamilyBSD},
		{ID: OpenBSD, Name: "OpenBSD", Family: FamilyBSD, Keywords: []string{"netbsd"}},
		{ID: MacOS, Name: "macOS", Family: FamilyMacOS, Keywords: []string{"osx", "mac", "sonoma", "ventura", "monterey"}},
		{ID: Solaris, Name: "Solaris", Family: FamilySolaris, Keywords: []string{"illumos", "openindiana"}},
	} {
		Register(d)
	}
}
