//go:build darwin

package broadcast

import "golang.org/x/sys/unix"

// SIGPIPE suppression is per-socket here (SO_NOSIGPIPE in setPeerSockOpts),
// not per-send.
const sendFlags = unix.MSG_DONTWAIT

func newListenSocket() (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	unix.CloseOnExec(fd)
	return fd, nil
}

// acceptConn accepts one connection; darwin has no accept4, so the flags
// are applied after the fact.
func acceptConn(listenFD int) (int, unix.Sockaddr, error) {
	fd, sa, err := unix.Accept(listenFD)
	if err != nil {
		return -1, nil, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, nil, err
	}
	unix.CloseOnExec(fd)
	return fd, sa, nil
}

func setPeerSockOpts(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		return err
	}
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_NOSIGPIPE, 1)
}
