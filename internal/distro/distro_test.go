package distro

import (
	"errors"
	"testing"
)

func TestRegistryGet(t *testing.T) {
	tests := []struct {
		name    string
		id      ID
		wantErr bool
	}{
		{"alpine", Alpine, false},
		{"ubuntu", Ubuntu, false},
		{"windows", Windows, false},
		{"freebsd", FreeBSD, false},
		{"unknown", ID("unknown"), true},
		{"empty", ID(""), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Get(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("Get(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
				return
			}
			if !tt.wantErr && d.ID != tt.id {
				t.Errorf("Get(%q) returned distro with ID %q", tt.id, d.ID)
			}
		})
	}
}

func TestErrUnknownDistro(t *testing.T) {
	_, err := Get("plan9")

	var unknown *ErrUnknownDistro
	if !errors.As(err, &unknown) {
		t.Fatalf("expected *ErrUnknownDistro, got %T", err)
	}
	if unknown.ID != "plan9" {
		t.Errorf("ID = %q, want plan9", unknown.ID)
	}
}

func TestListSorted(t *testing.T) {
	ids := List()
	if len(ids) < 12 {
		t.Fatalf("expected built-in distros, got %v", ids)
	}
	for i := 1; i < len(ids); i++ {
		if ids[i-1] >= ids[i] {
			t.Errorf("List() not sorted: %v", ids)
			break
		}
	}
}

func TestParseHint(t *testing.T) {
	tests := []struct {
		in      string
		want    Family
		wantErr bool
	}{
		{"Linux", FamilyLinux, false},
		{"windows", FamilyWindows, false},
		{"MACOS", FamilyMacOS, false},
		{"debian", FamilyLinux, false},
		{"FreeBSD", FamilyBSD, false},
		{"plan9", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHint(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseHint(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseHint(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	_, err := ParseHint("plan9")
	var unknown *ErrUnknownDistro
	if !errors.As(err, &unknown) {
		t.Fatalf("expected *ErrUnknownDistro in chain, got %v", err)
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name   string
		want   ID
		wantOK bool
	}{
		{"ubuntu-24.04-server", Ubuntu, true},
		{"Win10_x64", Windows, true},
		{"windows-server-2022", Windows, true},
		{"debian 12", Debian, true},
		{"bookworm", Debian, true},
		{"FreeBSD-14.1-RELEASE-amd64", FreeBSD, true},
		{"osx-sonoma", MacOS, true},
		{"my-build-box", "", false},
		{"twin", "", false}, // keywords match whole words only
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := Detect(tt.name)
			if ok != tt.wantOK || d.ID != tt.want {
				t.Errorf("Detect(%q) = %q, %v; want %q, %v", tt.name, d.ID, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestHint(t *testing.T) {
	tests := map[string]Family{
		"win11":         FamilyWindows,
		"openbsd-7":     FamilyBSD,
		"fedora-40":     FamilyLinux,
		"solaris11":     FamilySolaris,
		"unknown-thing": FamilyLinux,
		"":              FamilyLinux,
	}
	for name, want := range tests {
		if got := Hint(name); got != want {
			t.Errorf("Hint(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestRegisterReplaces(t *testing.T) {
	orig, _ := Get(Alpine)
	defer Register(orig)

	Register(Distro{ID: Alpine, Name: "Alpine Edge", Family: FamilyLinux})
	d, err := Get(Alpine)
	if err != nil {
		t.Fatal(err)
	}
	if d.Name != "Alpine Edge" {
		t.Errorf("Name = %q, want replacement", d.Name)
	}
}
