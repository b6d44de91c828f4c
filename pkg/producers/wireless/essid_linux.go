//go:build linux

package wireless

import (
	"bytes"
	"unsafe"

	"golang.org/x/sys/unix"
)

// siocgiwessid is the wireless-extensions request for the current ESSID.
const siocgiwessid = 0x8B1B

// iwreq mirrors struct iwreq with the iw_point member of its union.
type iwreq struct {
	name    [unix.IFNAMSIZ]byte
	pointer unsafe.Pointer
	length  uint16
	flags   uint16
	_       [8]byte
}

func queryESSID(iface string) (string, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return "", err
	}
	defer unix.Close(fd)

	var buf [MaxESSIDLen + 1]byte
	var req iwreq
	copy(req.name[:unix.IFNAMSIZ-1], iface)
	req.pointer = unsafe.Pointer(&buf[0])
	req.length = uint16(len(buf))

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), siocgiwessid, uintptr(unsafe.Pointer(&req)))
	if errno != 0 {
		return "", errno
	}
	return string(bytes.TrimRight(buf[:], "\x00")), nil
}
