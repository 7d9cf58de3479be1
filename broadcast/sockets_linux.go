//go:build linux

package broadcast

import "golang.org/x/sys/unix"

// sendFlags suppresses SIGPIPE per send; darwin sets SO_NOSIGPIPE on the
// socket instead.
const sendFlags = unix.MSG_DONTWAIT | unix.MSG_NOSIGNAL

func newListenSocket() (int, error) {
	return unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
}

// acceptConn accepts one connection with the non-blocking and close-on-exec
// flags applied atomically.
func acceptConn(listenFD int) (int, unix.Sockaddr, error) {
	return unix.Accept4(listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
}

func setPeerSockOpts(fd int) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
}
