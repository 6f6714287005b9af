package socket

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Notifier is the kernel readiness notifier of spec.md sections 4.8 and 6:
// one per address-family worker, registered once at startup with every one
// of that family's interface sockets, then blocked on indefinitely inside
// the worker's main loop.
type Notifier struct {
	epfd int
	buf  []unix.EpollEvent

	// fdToIndex maps a registered file descriptor back to the caller's
	// own index for that socket (its position in the worker's interface
	// list), so Wait can report which interface became ready without the
	// worker having to search.
	fdToIndex map[int]int
}

// NewNotifier creates an epoll-based readiness notifier sized for n
// registered sockets.
func NewNotifier(n int) (*Notifier, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("socket: epoll_create1: %w", err)
	}
	if n < 1 {
		n = 1
	}
	return &Notifier{
		epfd:      fd,
		buf:       make([]unix.EpollEvent, n),
		fdToIndex: make(map[int]int, n),
	}, nil
}

// Register adds fd to the notifier's watch set, associating it with index
// so Wait can report it back directly.
func (n *Notifier) Register(fd, index int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(n.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("socket: epoll_ctl add fd %d: %w", fd, err)
	}
	n.fdToIndex[fd] = index
	return nil
}

// Wait blocks until at least one registered socket is readable (or the
// process receives a signal, handled by retrying on EINTR per spec.md
// section 4.8), and returns the caller indices of every socket that became
// ready.
func (n *Notifier) Wait() ([]int, error) {
	for {
		count, err := unix.EpollWait(n.epfd, n.buf, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return nil, fmt.Errorf("socket: epoll_wait: %w", err)
		}

		ready := make([]int, 0, count)
		for i := 0; i < count; i++ {
			if idx, ok := n.fdToIndex[int(n.buf[i].Fd)]; ok {
				ready = append(ready, idx)
			}
		}
		return ready, nil
	}
}

// Close releases the epoll file descriptor.
func (n *Notifier) Close() error {
	return unix.Close(n.epfd)
}
