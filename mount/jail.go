//go:build linux

package mount

import "github.com/judgebox/judgebox/logger"

// Stage applies the full mount plan for a jail rooted at root: the caller's
// bind mounts first (in the order given), then the ambient filesystem a jail
// needs but a bare directory tree doesn't provide — /proc, /dev, /tmp, and
// the essential /etc files. It does not pivot; PivotTo does that separately
// once staging is complete.
//
// instance scopes the diagnostic logging emitted while staging to the run
// being jailed. interactive governs whether /dev gets a bindable controlling
// terminal device. tmpSizeBytes sizes the tmpfs backing /tmp; 0 selects a
// conservative default.
func Stage(root string, mounts []Mount, nameservers []string, hostname, instance string, interactive bool, tmpSizeBytes uint64) error {
	log := logger.WithInstance(logger.Log, instance)

	if err := Apply(root, mounts); err != nil {
		return err
	}
	if err := MountProc(root, log); err != nil {
		return err
	}
	if err := MountDev(root, interactive, log); err != nil {
		return err
	}
	if err := MountTmp(root, tmpSizeBytes); err != nil {
		return err
	}
	return SetupEtc(root, nameservers, hostname, log)
}
