//go:build linux

package sandbox

import (
	"fmt"
	"strings"

	"github.com/moby/sys/capability"

	"github.com/judgebox/judgebox/net"
)

// DefaultCaps computes the default capability allow-list for a run. It
// starts from the Docker/runc baseline and withholds the two capabilities
// that only make sense for a subset of judgebox configurations:
// CAP_NET_RAW is only useful to a process that owns its own network
// interfaces (bridge mode), and CAP_SYS_CHROOT is only meaningful when the
// child actually pivots into a jail root. Granting either unconditionally
// would hand a graded program a capability it has no legitimate use for.
func DefaultCaps(netMode net.NetworkMode, hasNewRoot bool) []string {
	caps := []string{
		"CAP_CHOWN", "CAP_DAC_OVERRIDE", "CAP_FSETID", "CAP_FOWNER",
		"CAP_MKNOD", "CAP_SETGID", "CAP_SETUID",
		"CAP_SETFCAP", "CAP_SETPCAP", "CAP_NET_BIND_SERVICE",
		"CAP_KILL", "CAP_AUDIT_READ", "CAP_AUDIT_WRITE",
	}
	if netMode == net.NetBridge {
		caps = append(caps, "CAP_NET_RAW")
	}
	if hasNewRoot {
		caps = append(caps, "CAP_SYS_CHROOT")
	}
	return caps
}

/**
 * An unordered set of capability IDs, used to express the Add/Drop deltas
 * a run layers on top of the computed defaults.
 */
type CapSet map[capability.Cap]struct{}

/**
 * Per-run capability adjustments, layered on top of DefaultCaps.
 */
type CapabilityOpts struct {
	// Capabilities granted in addition to the defaults.
	Add CapSet `json:"add"`

	// Capabilities withheld from the defaults.
	Drop CapSet `json:"drop"`
}

/**
 * @return a CapSet holding the given capability IDs.
 */
func NewCapSet(ids ...capability.Cap) CapSet {
	cs := make(CapSet, len(ids))
	cs.Add(ids...)
	return cs
}

/**
 * Inserts the given capability IDs into the set.
 */
func (cs CapSet) Add(ids ...capability.Cap) {
	for _, id := range ids {
		cs[id] = struct{}{}
	}
}

/**
 * Deletes the given capability IDs from the set.
 */
func (cs CapSet) Remove(ids ...capability.Cap) {
	for _, id := range ids {
		delete(cs, id)
	}
}

/**
 * @return the set's members as a slice, in no particular order.
 */
func (cs CapSet) Slice() []capability.Cap {
	out := make([]capability.Cap, 0, len(cs))
	for id := range cs {
		out = append(out, id)
	}
	return out
}

/**
 * NormalizeCap reduces a user-supplied capability name to the lowercase,
 * prefix-free form the capability library names them by, so "CAP_NET_RAW",
 * " cap_net_raw " and "net_raw" all resolve to the same entry.
 * @return the normalized capability name
 */
func NormalizeCap(cap string) string {
	s := strings.TrimSpace(strings.ToLower(cap))
	s = strings.TrimPrefix(s, "cap_")
	return s
}

/**
 * Lookup table from normalized capability names to their IDs, built once
 * from whatever the running kernel reports as known.
 */
var capNameToID = func() map[string]capability.Cap {
	m := make(map[string]capability.Cap)
	for _, c := range capability.ListKnown() {
		m[c.String()] = c
	}
	return m
}()

/**
 * FromCapability resolves one capability name to its ID.
 * @return the capability ID, or an error for a name the kernel doesn't know
 */
func FromCapability(cap string) (capability.Cap, error) {
	id, ok := capNameToID[NormalizeCap(cap)]
	if !ok {
		return 0, fmt.Errorf("unknown capability: %q", cap)
	}
	return id, nil
}

/**
 * FromCapabilities resolves a list of capability names to IDs, failing on
 * the first name that doesn't resolve rather than dropping it silently.
 */
func FromCapabilities(caps []string) ([]capability.Cap, error) {
	out := make([]capability.Cap, 0, len(caps))
	for _, cap := range caps {
		id, err := FromCapability(cap)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

/**
 * BuildCapSets computes the effective capability sets given the run's
 * defaults (as determined by netMode and hasNewRoot) plus user
 * additions/drops.
 * @return a map of capability sets by type, or an error if any capability is unknown
 */
func (o *CapabilityOpts) BuildCapSets(netMode net.NetworkMode, hasNewRoot bool) (map[capability.CapType][]capability.Cap, error) {
	defCaps, err := FromCapabilities(DefaultCaps(netMode, hasNewRoot))
	if err != nil {
		return nil, err
	}
	capSet := NewCapSet(defCaps...)

	// Apply drops.
	if len(o.Drop) > 0 {
		capSet.Remove(o.Drop.Slice()...)
	}

	// Apply adds.
	if len(o.Add) > 0 {
		capSet.Add(o.Add.Slice()...)
	}

	final := capSet.Slice()
	return map[capability.CapType][]capability.Cap{
		capability.BOUNDING:    final,
		capability.PERMITTED:   final,
		capability.EFFECTIVE:   final,
		capability.INHERITABLE: final,
	}, nil
}

/**
 * Apply applies the computed capability sets to the current process.
 * It clears existing caps and sets only those returned by BuildCapSets.
 * netMode and hasNewRoot select which run-dependent defaults apply; see
 * DefaultCaps.
 */
func (o *CapabilityOpts) Apply(netMode net.NetworkMode, hasNewRoot bool) error {
	capsByType, err := o.BuildCapSets(netMode, hasNewRoot)
	if err != nil {
		return err
	}

	// pid 0 addresses the calling process itself.
	caps, err := capability.NewPid2(0)
	if err != nil {
		return fmt.Errorf("error getting process capabilities: %w", err)
	}

	// Bounding set goes first: it caps what the other sets may contain.
	caps.Clear(capability.BOUNDS)
	caps.Set(capability.BOUNDING, capsByType[capability.BOUNDING]...)

	// Then replace permitted/effective/inheritable outright.
	caps.Clear(capability.CAPS)
	caps.Set(capability.PERMITTED, capsByType[capability.PERMITTED]...)
	caps.Set(capability.EFFECTIVE, capsByType[capability.EFFECTIVE]...)
	caps.Set(capability.INHERITABLE, capsByType[capability.INHERITABLE]...)

	// Nothing survives exec via the ambient set.
	caps.Clear(capability.AMBIENT)

	if err := caps.Apply(capability.CAPS | capability.BOUNDS | capability.AMBIENT); err != nil {
		return fmt.Errorf("set capabilities: %w", err)
	}

	return nil
}
