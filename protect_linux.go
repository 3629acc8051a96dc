package vtpatch

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	protRX  = unix.PROT_READ | unix.PROT_EXEC
	protRWX = unix.PROT_READ | unix.PROT_WRITE | unix.PROT_EXEC
)

func (pageProtector) Unprotect(addr uintptr, size int) (func() error, error) {
	start, length := pageRange(addr, size)

	prev, err := mappedProtection(start, length)
	if err != nil {
		return nil, err
	}

	region := unsafe.Slice((*byte)(unsafe.Pointer(start)), length)
	if err := unix.Mprotect(region, protRWX); err != nil {
		return nil, errors.Wrapf(err, "mprotect %#x+%d", start, length)
	}

	return func() error {
		return errors.Wrapf(unix.Mprotect(region, prev), "restore protection on %#x+%d", start, length)
	}, nil
}

// mappedProtection reads the current protection of the mapping containing
// [start, start+length) from /proc/self/maps.
func mappedProtection(start uintptr, length int) (int, error) {
	f, err := os.Open("/proc/self/maps")
	if err != nil {
		return 0, errors.Wrap(err, "read memory map")
	}
	defer f.Close()

	end := start + uintptr(length)

	// Each line looks like:
	// 7f2c5a1d1000-7f2c5a1d3000 r--p 00000000 08:01 1234 /usr/lib/libsteam_api.so
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		lo, hi, ok := strings.Cut(fields[0], "-")
		if !ok {
			continue
		}
		mapStart, err := strconv.ParseUint(lo, 16, 64)
		if err != nil {
			continue
		}
		mapEnd, err := strconv.ParseUint(hi, 16, 64)
		if err != nil {
			continue
		}
		if uint64(start) < mapStart || uint64(start) >= mapEnd {
			continue
		}
		if uint64(end) > mapEnd {
			return 0, errors.Errorf("range %#x-%#x spans more than one mapping", start, end)
		}
		return parsePerms(fields[1]), nil
	}
	if err := scanner.Err(); err != nil {
		return 0, errors.Wrap(err, "read memory map")
	}
	return 0, errors.Errorf("address %#x is not mapped", start)
}

func parsePerms(perms string) int {
	prot := unix.PROT_NONE
	for _, c := range perms {
		switch c {
		case 'r':
			prot |= unix.PROT_READ
		case 'w':
			prot |= unix.PROT_WRITE
		case 'x':
			prot |= unix.PROT_EXEC
		}
	}
	return prot
}
