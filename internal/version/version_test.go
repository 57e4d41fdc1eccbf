package version

import "testing"

func TestString(t *testing.T) {
	origVersion, origCommit := Version, Commit
	defer func() { Version, Commit = origVersion, origCommit }()

	Version, Commit = "1.2.0", "3f2a9c1d8e7b6a5f"
	if got := String(); got != "1.2.0 (3f2a9c1)" {
		t.Errorf("String() = %q", got)
	}

	Version, Commit = "dev", "unknown"
	if got := String(); got != "dev (unknown)" {
		t.Errorf("String() = %q", got)
	}
}
