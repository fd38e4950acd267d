//go:build linux

package options

import (
	"fmt"

	"github.com/judgebox/judgebox/net"
	"github.com/judgebox/judgebox/sandbox"
)

/**
 * Parse network mode from the given string.
 * @param s the string to parse
 * @return the parsed NetworkMode
 */
func parseNetMode(s string) (net.NetworkMode, error) {
	switch s {
	case "none":
		return net.NetNone, nil
	case "host":
		return net.NetHost, nil
	case "bridge":
		return net.NetBridge, nil
	default:
		return net.NetNone, fmt.Errorf("bad --net %q (none|host|bridge)", s)
	}
}

/**
 * Parse the network namespace sharing mode from the given string.
 * @param s the string to parse
 * @return the parsed ShareNet
 */
func parseShareNet(s string) (sandbox.ShareNet, error) {
	switch s {
	case "unshare":
		return sandbox.Unshare, nil
	case "share":
		return sandbox.Share, nil
	default:
		return sandbox.Unshare, fmt.Errorf("bad --share-net %q (share|unshare)", s)
	}
}
