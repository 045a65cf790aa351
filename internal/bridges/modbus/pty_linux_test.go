//go:build linux

package modbus

import (
	"fmt"
	"os"
	"syscall"
	"testing"
	"time"
	"unsafe"
)

// openPTY returns the master side of a pseudo-terminal and the path of its
// slave, which the server opens like any serial device.
func openPTY(t *testing.T) (*os.File, string) {
	t.Helper()
	master, err := os.OpenFile("/dev/ptmx", os.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		t.Skipf("no pseudo-terminals: %v", err)
	}
	t.Cleanup(func() { master.Close() })

	var unlock int32
	if err := ioctl(master, syscall.TIOCSPTLCK, unsafe.Pointer(&unlock)); err != nil {
		t.Skipf("unlocking pty: %v", err)
	}
	var n uint32
	if err := ioctl(master, syscall.TIOCGPTN, unsafe.Pointer(&n)); err != nil {
		t.Skipf("pty number: %v", err)
	}
	return master, fmt.Sprintf("/dev/pts/%d", n)
}

func ioctl(f *os.File, req uintptr, arg unsafe.Pointer) error {
	conn, err := f.SyscallConn()
	if err != nil {
		return err
	}
	var errno syscall.Errno
	if err := conn.Control(func(fd uintptr) {
		_, _, errno = syscall.Syscall(syscall.SYS_IOCTL, fd, req, uintptr(arg))
	}); err != nil {
		return err
	}
	if errno != 0 {
		return errno
	}
	return nil
}

// readReply reads from the master until n bytes arrive or the deadline
// passes.
func readReply(t *testing.T, master *os.File, n int) []byte {
	t.Helper()
	if err := master.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Skipf("pty master has no deadlines: %v", err)
	}
	got := make([]byte, 0, n)
	buf := make([]byte, 64)
	for len(got) < n {
		k, err := master.Read(buf)
		got = append(got, buf[:k]...)
		if err != nil {
			t.Fatalf("reading reply after % x: %v", got, err)
		}
	}
	return got
}

func TestServer_PTYPacedRequest(t *testing.T) {
	master, slave := openPTY(t)

	_, s := newTestServer()
	s.cfg.Port = slave
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Close()

	// Read 7101 with the bytes spaced out the way a slow line delivers them.
	req := rtuADU(1, 3, 0x1B, 0xBD, 0x00, 0x01)
	for _, b := range req {
		if _, err := master.Write([]byte{b}); err != nil {
			t.Fatalf("write: %v", err)
		}
		time.Sleep(time.Millisecond)
	}

	want := []byte{0x01, 0x03, 0x02, 0x00, 0xDD, 0x78, 0x1D}
	if got := readReply(t, master, len(want)); string(got) != string(want) {
		t.Errorf("reply = % x, want % x", got, want)
	}
	if s.BadFrames() != 0 {
		t.Errorf("BadFrames() = %d, want 0", s.BadFrames())
	}
}
