//go:build darwin

package broadcast

import "golang.org/x/sys/unix"

// poller is the kqueue readiness source, mirroring the linux epoll variant.
// Both the listener and peers carry an EVFILT_READ filter: on the listener
// it signals pending accepts, on a peer (which never sends data in this
// protocol) it only ever fires with EV_EOF when the peer hangs up. wait
// never suspends; the engine's caller provides the idle backoff.
type poller struct {
	fd     int
	events [maxPollEvents]unix.Kevent_t
}

func newPoller() (*poller, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &poller{fd: fd}, nil
}

func (p *poller) addRead(fd int) error {
	ev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}
	_, err := unix.Kevent(p.fd, []unix.Kevent_t{ev}, nil, nil)
	return err
}

func (p *poller) addListener(fd int) error { return p.addRead(fd) }

func (p *poller) addPeer(fd int) error { return p.addRead(fd) }

func (p *poller) removePeer(fd int) {
	ev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_DELETE,
	}
	_, _ = unix.Kevent(p.fd, []unix.Kevent_t{ev}, nil, nil)
}

func (p *poller) wait(out []pollEvent) (int, error) {
	ts := unix.Timespec{} // zero timeout: poll, never suspend
	n, err := unix.Kevent(p.fd, nil, p.events[:], &ts)
	if err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		ev := p.events[i]
		out[i] = pollEvent{
			fd:     int(ev.Ident),
			hangup: ev.Flags&(unix.EV_EOF|unix.EV_ERROR) != 0,
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
