//go:build linux

package img

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// UnixReader reads block devices through the raw device node, opened
// read-only at the OS boundary.
type UnixReader struct {
	pathToDisk string
	fd         int
}

func newPhysicalDriveReader(pathToDisk string) DiskReader {
	return &UnixReader{pathToDisk: pathToDisk}
}

func (unixreader *UnixReader) CreateHandler() error {
	fd, err := unix.Open(unixreader.pathToDisk, unix.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("opening %s: %w", unixreader.pathToDisk, err)
	}
	unixreader.fd = fd
	return nil
}

func (unixreader *UnixReader) ReadFile(physicalOffset int64, length int) ([]byte, error) {
	buffer := make([]byte, length)
	n, err := unix.Pread(unixreader.fd, buffer, physicalOffset)
	if err != nil {
		return nil, fmt.Errorf("reading %d bytes at %d: %w", length, physicalOffset, err)
	}
	if n < length {
		return nil, fmt.Errorf("short read %d of %d bytes at %d", n, length, physicalOffset)
	}
	return buffer, nil
}

func (unixreader *UnixReader) CloseHandler() {
	unix.Close(unixreader.fd)
}

func (unixreader *UnixReader) GetDiskSize() int64 {
	var size uint64
	err := ioctlBlockSize(unixreader.fd, &size)
	if err != nil {
		return 0
	}
	return int64(size)
}

func ioctlBlockSize(fd int, size *uint64) error {
	sz, err := unix.IoctlGetInt(fd, unix.BLKGETSIZE64)
	if err != nil {
		return err
	}
	*size = uint64(sz)
	return nil
}
