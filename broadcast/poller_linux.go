//go:build linux

package broadcast

import "golang.org/x/sys/unix"

// poller is the epoll readiness source. The listener is registered
// edge-triggered; peers are watched for error/hangup only, never
// writability. wait never suspends: the engine's caller provides the idle
// backoff, so pacing can reach the configured rate instead of being capped
// by a blocking poll.
type poller struct {
	fd     int
	events [maxPollEvents]unix.EpollEvent
}

func newPoller() (*poller, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &poller{fd: fd}, nil
}

func (p *poller) addListener(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLET, Fd: int32(fd)}
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (p *poller) addPeer(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLRDHUP, Fd: int32(fd)}
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (p *poller) removePeer(fd int) {
	_ = unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *poller) wait(out []pollEvent) (int, error) {
	n, err := unix.EpollWait(p.fd, p.events[:], 0)
	if err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		out[i] = pollEvent{
			fd:     int(p.events[i].Fd),
			hangup: p.events[i].Events&(unix.EPOLLERR|unix.EPOLLHUP|unix.EPOLLRDHUP) != 0,
		}
	}
	return n, nil
}

func (p *poller) close() {
	if p.fd >= 0 {
		unix.Close(p.fd)
		p.fd = -1
	}
}
