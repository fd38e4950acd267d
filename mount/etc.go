//go:build linux

package mount

import (
	"fmt"
	"log/slog"
	"os"
	"path"

	"golang.org/x/sys/unix"
)

var defaultNameservers = []string{
	"8.8.8.8",
	"8.8.4.4",
}

/**
 * Set DNS resolvers in the sandbox /etc/resolv.conf.
 * @param base the root path of the sandbox filesystem.
 * @param nameservers the list of nameservers to set.
 * @return error if any, nil otherwise.
 */
func SetResolvers(base string, nameservers []string) error {
	var resolvContent string

	if base == "" {
		return unix.EINVAL
	}

	// Ensure /etc exists.
	if err := os.MkdirAll(path.Join(base, "/etc"), 0o755); err != nil {
		return fmt.Errorf("error creating /etc directory: %w", err)
	}

	// Check if /etc/resolv.conf exists and remove it if it is a symlink.
	resolvPath := path.Join(base, "/etc/resolv.conf")
	if info, err := os.Lstat(resolvPath); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			if err := os.Remove(resolvPath); err != nil {
				return fmt.Errorf("error removing symlink /etc/resolv.conf: %w", err)
			}
		}
	}

	// Use default nameservers if none provided.
	if len(nameservers) == 0 {
		nameservers = defaultNameservers
	}

	// Write the provided nameservers.
	for _, ns := range nameservers {
		resolvContent += fmt.Sprintf("nameserver %s\n", ns)
	}

	// Here we don't bind-mount from the host, because we want the
	// sandbox to have its own resolv.conf, and its own DNS settings.
	// This avoids issues with the host's resolv.conf being incompatible
	// with the sandbox (e.g. using systemd-resolved's stub resolver, or local
	// DNS servers that are not accessible from within the sandbox).
	if err := os.WriteFile(resolvPath, []byte(resolvContent), 0o644); err != nil {
		return fmt.Errorf("error creating /etc/resolv.conf: %w", err)
	}

	return nil
}

/**
 * Setup essential /etc files in the sandbox rootfs.
 * @param base the root path of the sandbox filesystem.
 * @param nameservers the resolv.conf nameservers for this run.
 * @param hostname the /etc/hostname value for this run.
 * @param log receives warnings scoped to the run being staged, and an info
 * line recording the resolvers actually applied (useful during grading
 * incident review, since a wrong or unreachable resolver is otherwise
 * indistinguishable from the graded program itself hanging on network IO).
 * @return error if any, nil otherwise.
 */
func SetupEtc(base string, nameservers []string, hostname string, log *slog.Logger) error {
	if base == "" {
		return unix.EINVAL
	}

	// Ensure /etc exists.
	target := path.Join(base, "/etc")
	if err := os.MkdirAll(target, 0o755); err != nil {
		return err
	}

	// Create /etc/resolv.conf.
	if err := SetResolvers(base, nameservers); err != nil {
		log.Warn("error setting resolvers", slog.Any("err", err))
	} else {
		applied := nameservers
		if len(applied) == 0 {
			applied = defaultNameservers
		}
		log.Info("configured resolvers", slog.Any("nameservers", applied))
	}

	// Bind-mount /etc/hosts
	if _, err := os.Stat("/etc/hosts"); err == nil {
		m := Mount{Source: "/etc/hosts", Destination: "/etc/hosts", Options: Options{ReadOnly: true}}
		if err := bind(base, m); err != nil {
			return fmt.Errorf("error binding /etc/hosts: %w", err)
		}
	}

	// Write the hostname if specified.
	if hostname != "" {
		hostnamePath := path.Join(base, "/etc/hostname")
		if err := os.WriteFile(hostnamePath, []byte(hostname+"\n"), 0o644); err != nil {
			log.Warn("error writing /etc/hostname", slog.Any("err", err))
		}
	}

	return nil
}
