//go:build linux

package sandbox

import (
	"sync"

	seccomp "github.com/seccomp/libseccomp-golang"
	"golang.org/x/sys/unix"

	appErr "github.com/junefish/hdf5-udf/pkg/errors"
)

// pathSyscalls are the calls whose path argument the supervisor validates.
// fstat operates on descriptors and stays in the plain allowlist.
var pathSyscalls = []string{"stat", "lstat", "open", "openat"}

var installOnce sync.Once

// Install confines the calling process. It sets NO_NEW_PRIVS, loads the
// path-notification filter, hands its notify descriptor to the supervisor
// over notifySock, then loads the default-kill allowlist. The order matters:
// the default allowlist admits neither seccomp nor prctl, so no filter can
// be loaded once it is live.
// Idempotent per process; repeat calls are no-ops.
func Install(profile Profile, notifySock int) error {
	var err error
	installOnce.Do(func() {
		err = install(profile, notifySock)
	})
	return err
}

func install(profile Profile, notifySock int) error {
	if err := profile.Validate(); err != nil {
		return err
	}
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return appErr.Wrap(err, appErr.FilterInstallFailed)
	}

	notifFd, err := loadNotifyFilter()
	if err != nil {
		return err
	}
	if err := sendNotifyFd(notifySock, notifFd); err != nil {
		_ = unix.Close(notifFd)
		return err
	}
	_ = unix.Close(notifySock)

	return loadAllowlist(profile)
}

// loadNotifyFilter installs an allow-by-default filter that flags path
// syscalls for supervision and returns the notify descriptor.
func loadNotifyFilter() (int, error) {
	filter, err := seccomp.NewFilter(seccomp.ActAllow)
	if err != nil {
		return 0, appErr.Wrap(err, appErr.FilterInstallFailed)
	}
	for _, name := range pathSyscalls {
		sc, err := seccomp.GetSyscallFromName(name)
		if err != nil {
			continue
		}
		if err := filter.AddRule(sc, seccomp.ActNotify); err != nil {
			return 0, appErr.Wrapf(err, appErr.FilterInstallFailed, "notify rule for %s: %v", name, err)
		}
	}
	if err := filter.Load(); err != nil {
		return 0, appErr.Wrap(err, appErr.FilterInstallFailed)
	}
	fd, err := filter.GetNotifFd()
	if err != nil {
		return 0, appErr.Wrap(err, appErr.FilterInstallFailed)
	}
	return int(fd), nil
}

// loadAllowlist installs the default-kill filter described by the profile.
func loadAllowlist(profile Profile) error {
	filter, err := seccomp.NewFilter(seccomp.ActKillProcess)
	if err != nil {
		return appErr.Wrap(err, appErr.FilterInstallFailed)
	}
	for _, rule := range profile.Syscalls {
		for _, name := range rule.Names {
			sc, err := seccomp.GetSyscallFromName(name)
			if err != nil {
				// Not every name exists on every architecture.
				continue
			}
			if rule.Arg == nil {
				if err := filter.AddRule(sc, seccomp.ActAllow); err != nil {
					return appErr.Wrapf(err, appErr.FilterInstallFailed, "allow rule for %s: %v", name, err)
				}
				continue
			}
			cond, err := makeCondition(*rule.Arg)
			if err != nil {
				return err
			}
			if err := filter.AddRuleConditional(sc, seccomp.ActAllow, []seccomp.ScmpCondition{cond}); err != nil {
				return appErr.Wrapf(err, appErr.FilterInstallFailed, "conditional rule for %s: %v", name, err)
			}
		}
	}
	if err := filter.Load(); err != nil {
		return appErr.Wrap(err, appErr.FilterInstallFailed)
	}
	return nil
}

func makeCondition(arg ArgRule) (seccomp.ScmpCondition, error) {
	switch arg.Op {
	case "eq":
		cond, err := seccomp.MakeCondition(arg.Index, seccomp.CompareEqual, arg.Value)
		if err != nil {
			return seccomp.ScmpCondition{}, appErr.Wrap(err, appErr.FilterInstallFailed)
		}
		return cond, nil
	case "masked-eq":
		cond, err := seccomp.MakeCondition(arg.Index, seccomp.CompareMaskedEqual, arg.Mask, arg.Value)
		if err != nil {
			return seccomp.ScmpCondition{}, appErr.Wrap(err, appErr.FilterInstallFailed)
		}
		return cond, nil
	default:
		return seccomp.ScmpCondition{}, appErr.Newf(appErr.PolicyInvalid, "unknown arg op %q", arg.Op)
	}
}

// sendNotifyFd passes the notify descriptor to the supervisor over a
// socketpair end inherited from the parent.
func sendNotifyFd(sock, fd int) error {
	rights := unix.UnixRights(fd)
	if err := unix.Sendmsg(sock, nil, rights, nil, 0); err != nil {
		return appErr.Wrap(err, appErr.FilterInstallFailed)
	}
	return nil
}
