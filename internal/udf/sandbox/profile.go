package sandbox

import (
	"os"

	"gopkg.in/yaml.v3"

	appErr "github.com/junefish/hdf5-udf/pkg/errors"
)

// ArgRule constrains one syscall argument. Op is "eq" or "masked-eq"; for
// masked-eq the argument is ANDed with Mask before comparing against Value.
type ArgRule struct {
	Index uint   `yaml:"index"`
	Op    string `yaml:"op"`
	Value uint64 `yaml:"value"`
	Mask  uint64 `yaml:"mask"`
}

// SyscallRule admits a group of syscalls, optionally gated on an argument.
type SyscallRule struct {
	Names []string `yaml:"names"`
	Arg   *ArgRule `yaml:"arg,omitempty"`
}

// Profile is the kernel-level allowlist. Everything not listed is killed.
type Profile struct {
	Syscalls []SyscallRule `yaml:"syscalls"`
}

const (
	// FIONREAD is the only ioctl request a confined UDF may issue.
	FIONREAD = 0x541B
	// accessModeMask isolates the O_RDONLY/O_WRONLY/O_RDWR bits of open flags.
	accessModeMask = 0x3
)

// DefaultProfile admits process housekeeping, stream sockets for name
// resolution, and read-only file metadata access. The runtime group keeps
// the hosting language runtime alive inside the filter; without it signal
// delivery and timer bookkeeping in the confined process would be fatal.
func DefaultProfile() Profile {
	return Profile{
		Syscalls: []SyscallRule{
			{Names: []string{
				"brk", "exit_group", "mmap", "munmap", "mprotect",
				"lseek", "futex", "uname",
			}},
			{Names: []string{
				"socket", "setsockopt", "connect", "select", "poll",
				"read", "recv", "recvfrom",
				"write", "send", "sendto", "sendmsg",
				"close",
			}},
			{Names: []string{"ioctl"}, Arg: &ArgRule{Index: 1, Op: "eq", Value: FIONREAD}},
			{Names: []string{"stat", "lstat", "fstat", "newfstatat"}},
			{Names: []string{"open"}, Arg: &ArgRule{Index: 1, Op: "masked-eq", Mask: accessModeMask, Value: 0}},
			{Names: []string{"openat"}, Arg: &ArgRule{Index: 2, Op: "masked-eq", Mask: accessModeMask, Value: 0}},
			// runtime support
			{Names: []string{
				"sigaltstack", "rt_sigaction", "rt_sigprocmask", "rt_sigreturn",
				"nanosleep", "clock_nanosleep", "clock_gettime",
				"sched_yield", "gettid", "tgkill",
				"epoll_create1", "epoll_ctl", "epoll_pwait",
				"getrandom", "madvise",
			}},
		},
	}
}

// LoadProfile reads a profile file. A missing file yields the default.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultProfile(), nil
		}
		return Profile{}, appErr.Wrapf(err, appErr.PolicyInvalid, "read profile %s: %v", path, err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, appErr.Wrapf(err, appErr.PolicyInvalid, "parse profile %s: %v", path, err)
	}
	if len(p.Syscalls) == 0 {
		p = DefaultProfile()
	}
	return p, nil
}

// Validate rejects rules with no syscall names or unknown argument ops.
func (p Profile) Validate() error {
	for _, rule := range p.Syscalls {
		if len(rule.Names) == 0 {
			return appErr.New(appErr.PolicyInvalid).WithMessage("syscall rule with no names")
		}
		if rule.Arg != nil {
			switch rule.Arg.Op {
			case "eq", "masked-eq":
			default:
				return appErr.Newf(appErr.PolicyInvalid, "unknown arg op %q", rule.Arg.Op)
			}
		}
	}
	return nil
}
