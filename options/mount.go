//go:build linux

package options

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/judgebox/judgebox/mount"
)

// parseMount parses a mount specification of the form
// "HOST:DEST[:opt,opt,...]" where opt is one of "ro", "rw", "dev", "exec".
// The default, matching the jail's conservative stance, is read-only, no
// device nodes, no exec.
func parseMount(spec string) (mount.Mount, error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return mount.Mount{}, fmt.Errorf("bad --mount %q (HOST:DEST[:opts])", spec)
	}
	if !filepath.IsAbs(parts[1]) {
		return mount.Mount{}, fmt.Errorf("DEST must be absolute: %q", spec)
	}

	opts := mount.DefaultOptions()
	if len(parts) == 3 {
		for _, tok := range strings.Split(parts[2], ",") {
			switch tok {
			case "ro":
				opts.ReadOnly = true
			case "rw":
				opts.ReadOnly = false
			case "dev":
				opts.Dev = true
			case "exec":
				opts.Exec = true
			case "":
				// ignore trailing commas
			default:
				return mount.Mount{}, fmt.Errorf("bad mount option %q in %q", tok, spec)
			}
		}
	}

	return mount.Mount{Source: parts[0], Destination: parts[1], Options: opts}, nil
}
