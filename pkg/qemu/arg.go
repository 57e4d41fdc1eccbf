package qemu

import (
	"fmt"
	"slices"
	"strings"
)

// Arg is a single QEMU flag with an optional value.
//
// Unique flags may appear once per command. Repeatable flags may appear many
// times as long as their values differ.
type Arg struct {
	name       string
	value      string
	repeatable bool
}

// Flag returns a unique argument. Multiple values are joined with commas,
// which is how QEMU expects option lists.
func Flag(name string, value ...string) Arg {
	return Arg{name: name, value: strings.Join(value, ",")}
}

// Repeat returns a repeatable argument such as -device or -net.
func Repeat(name string, value ...string) Arg {
	return Arg{name: name, value: strings.Join(value, ","), repeatable: true}
}

// Name returns the flag name without the leading dash.
func (a Arg) Name() string {
	return a.name
}

// Value returns the flag value, empty for switches.
func (a Arg) Value() string {
	return a.value
}

// Repeatable reports whether the flag may appear more than once.
func (a Arg) Repeatable() bool {
	return a.repeatable
}

// String implements fmt.Stringer.
func (a Arg) String() string {
	if a.value == "" {
		return "-" + a.name
	}
	return "-" + a.name + " " + a.value
}

// collides reports whether a and other cannot both be in one command.
func (a Arg) collides(other Arg) bool {
	if a.name != other.name {
		return false
	}
	if a.repeatable && other.repeatable {
		return a.value == other.value
	}
	return true
}

// Args is an ordered list of QEMU arguments.
type Args []Arg

// Add appends arguments in order.
func (a *Args) Add(args ...Arg) {
	*a = append(*a, args...)
}

// Has reports whether a flag with the given name is present.
func (a Args) Has(name string) bool {
	return slices.ContainsFunc(a, func(arg Arg) bool { return arg.name == name })
}

// Values returns the values of every flag with the given name, in order.
func (a Args) Values(name string) []string {
	var values []string
	for _, arg := range a {
		if arg.name == name {
			values = append(values, arg.value)
		}
	}
	return values
}

// Build flattens the arguments into argv form. It fails with
// ErrArgumentCollision if any uniqueness rule is broken.
func (a Args) Build() ([]string, error) {
	argv := make([]string, 0, len(a)*2)
	for i, arg := range a {
		if j := slices.IndexFunc(a[:i], arg.collides); j != -1 {
			return nil, fmt.Errorf("%w: %s, %s", ErrArgumentCollision, a[j], arg)
		}
		argv = append(argv, "-"+arg.name)
		if arg.value != "" {
			argv = append(argv, arg.value)
		}
	}
	return argv, nil
}
