package sandbox

import (
	"github.com/judgebox/judgebox/cgroup"
	"github.com/judgebox/judgebox/mount"
	"github.com/judgebox/judgebox/net"
)

// ShareNet selects whether the child runs in the supervisor's own network
// namespace or a fresh, empty one.
type ShareNet int

const (
	Unshare ShareNet = iota
	Share
)

// SwapRedirects controls whether stdio redirection paths are resolved in the
// outer filesystem (before pivot) or inside the jail (after pivot).
type SwapRedirects int

const (
	NoSwapRedirects SwapRedirects = iota
	DoSwapRedirects
)

// ClearUsage controls whether cgroup usage counters are zeroed before the
// child is attached.
type ClearUsage int

const (
	DontClearUsage ClearUsage = iota
	DoClearUsage
)

// Interactive controls whether the controlling terminal stays attached to
// the child.
type Interactive int

const (
	NonInteractive Interactive = iota
	InteractiveMode
)

// Config is the bundle describing a single sandbox invocation. Run does not
// modify it except to fill in an empty InstanceName. The zero value is not
// valid; construct one with explicit fields.
type Config struct {
	// Command is the path to the binary, resolved inside the jail when
	// NewRoot is set.
	Command string

	// Args is argv excluding argv[0], which is derived from Command.
	Args []string

	// NewRoot is the jail root. If empty, the child keeps the
	// supervisor's root filesystem.
	NewRoot string

	ShareNet ShareNet

	// Network selects the optional bridged-network mode (C12). It is
	// inert unless ShareNet == Unshare; NetHost/NetNone never start the
	// veth/iptables machinery.
	Network net.NetworkMode

	// RedirectStdin/Stdout/Stderr are optional paths for stdio
	// redirection. Resolution order is governed by SwapRedirects.
	RedirectStdin  string
	RedirectStdout string
	RedirectStderr string

	Limits Limits

	// InstanceName derives the cgroup sub-directory names. A fresh UUID
	// is generated if empty, and Run writes it back into this field.
	InstanceName string

	ControllerPath cgroup.Path

	Mounts []mount.Mount

	SwapRedirects SwapRedirects
	ClearUsage    ClearUsage
	Interactive   Interactive
	Environment   Environment

	Capabilities CapabilityOpts

	// AllowSyscalls and DenySyscalls adjust the default seccomp deny-list:
	// AllowSyscalls removes entries from it, DenySyscalls adds to it.
	AllowSyscalls []string
	DenySyscalls  []string

	// Nameservers and Hostname feed the jail's /etc/resolv.conf and
	// /etc/hostname.
	Nameservers []string
	Hostname    string
}
