//go:build linux

package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"

	seccomp "github.com/seccomp/libseccomp-golang"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	appErr "github.com/junefish/hdf5-udf/pkg/errors"
	"github.com/junefish/hdf5-udf/pkg/utils/logger"
)

// maxPathLen bounds how many bytes of the child's memory are read when
// recovering a path argument.
const maxPathLen = 4096

// Supervisor answers path-syscall notifications from one confined worker.
// Paths on the expanded allowlist are let through to the kernel; everything
// else is failed with EPERM without the call ever executing.
type Supervisor struct {
	allowed []string
	openat  seccomp.ScmpSyscall

	mu     sync.Mutex
	denied []string
}

// NewSupervisor builds a supervisor for an already expanded allowlist.
func NewSupervisor(allowed []string) (*Supervisor, error) {
	openat, err := seccomp.GetSyscallFromName("openat")
	if err != nil {
		return nil, appErr.Wrap(err, appErr.SandboxError)
	}
	return &Supervisor{allowed: allowed, openat: openat}, nil
}

// ReceiveNotifyFd waits for the worker to pass its seccomp notify
// descriptor over the socketpair end sock.
func ReceiveNotifyFd(sock int) (int, error) {
	oob := make([]byte, unix.CmsgSpace(4))
	_, oobn, _, _, err := unix.Recvmsg(sock, nil, oob, 0)
	if err != nil {
		return 0, appErr.Wrap(err, appErr.SandboxError)
	}
	msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil || len(msgs) == 0 {
		return 0, appErr.New(appErr.SandboxError).WithMessage("no control message with notify descriptor")
	}
	fds, err := unix.ParseUnixRights(&msgs[0])
	if err != nil || len(fds) == 0 {
		return 0, appErr.New(appErr.SandboxError).WithMessage("no descriptor in control message")
	}
	return fds[0], nil
}

// Serve processes notifications until the worker exits or ctx is canceled.
// It owns notifFd and closes it on return.
func (s *Supervisor) Serve(ctx context.Context, notifFd int) {
	defer unix.Close(notifFd)
	fd := seccomp.ScmpFd(notifFd)

	for {
		req, err := seccomp.NotifReceive(fd)
		if err != nil {
			// ENOENT and ECANCELED mean the worker is gone.
			return
		}
		if ctx.Err() != nil {
			return
		}
		resp := s.decide(fd, req)
		if err := seccomp.NotifRespond(fd, resp); err != nil {
			return
		}
	}
}

func (s *Supervisor) decide(fd seccomp.ScmpFd, req *seccomp.ScmpNotifReq) *seccomp.ScmpNotifResp {
	argIdx := 0
	if req.Data.Syscall == s.openat {
		argIdx = 1
	}

	path, err := readChildPath(req.Pid, req.Data.Args[argIdx])
	if err != nil {
		return deny(req.ID)
	}
	// Re-validate after reading child memory so a recycled notification ID
	// cannot smuggle a swapped path through.
	if err := seccomp.NotifIDValid(fd, req.ID); err != nil {
		return deny(req.ID)
	}

	if Allows(s.allowed, path) {
		return &seccomp.ScmpNotifResp{ID: req.ID, Flags: seccomp.NotifRespFlagContinue}
	}

	s.mu.Lock()
	s.denied = append(s.denied, path)
	s.mu.Unlock()
	logger.Warn(context.Background(), "sandbox denied file access", zap.String("path", path))
	return deny(req.ID)
}

func deny(id uint64) *seccomp.ScmpNotifResp {
	return &seccomp.ScmpNotifResp{ID: id, Error: -int32(unix.EPERM)}
}

// DeniedPaths returns the paths refused so far, in notification order.
func (s *Supervisor) DeniedPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.denied))
	copy(out, s.denied)
	return out
}

// readChildPath copies a NUL-terminated string out of the worker's address
// space at the given pointer.
func readChildPath(pid uint32, addr uint64) (string, error) {
	mem, err := os.Open(fmt.Sprintf("/proc/%d/mem", pid))
	if err != nil {
		return "", err
	}
	defer mem.Close()

	buf := make([]byte, maxPathLen)
	n, err := mem.ReadAt(buf, int64(addr))
	if n == 0 && err != nil {
		return "", err
	}
	end := bytes.IndexByte(buf[:n], 0)
	if end < 0 {
		return "", appErr.New(appErr.SandboxError).WithMessage("unterminated path argument")
	}
	return string(buf[:end]), nil
}
