//go:build windows

package img

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

type DISK_GEOMETRY struct {
	Cylinders         int64
	MediaType         int32
	TracksPerCylinder int32
	SectorsPerTrack   int32
	BytesPerSector    int32
}

// WindowsReader reads physical drives (\\.\PHYSICALDRIVEn) with
// FILE_READ_DATA access only, writes are rejected by the handle itself.
type WindowsReader struct {
	a_file string
	fd     windows.Handle
}

func newPhysicalDriveReader(pathToDisk string) DiskReader {
	return &WindowsReader{a_file: pathToDisk}
}

func (winreader *WindowsReader) CreateHandler() error {
	file_ptr, _ := windows.UTF16PtrFromString(winreader.a_file)
	var templateHandle windows.Handle
	fd, err := windows.CreateFile(file_ptr, windows.FILE_READ_DATA,
		windows.FILE_SHARE_READ, nil,
		windows.OPEN_EXISTING, 0, templateHandle)
	if err != nil {
		return fmt.Errorf("opening %s: %w", winreader.a_file, err)
	}
	winreader.fd = fd
	return nil
}

func (winreader *WindowsReader) CloseHandler() {
	windows.Close(winreader.fd)
}

func (winreader *WindowsReader) GetDiskSize() int64 {
	const IOCTL_DISK_GET_DRIVE_GEOMETRY = 0x70000
	const nByte_DISK_GEOMETRY = 24
	disk_geometry := DISK_GEOMETRY{}

	var junk *uint32
	var inBuffer *byte
	err := windows.DeviceIoControl(winreader.fd, IOCTL_DISK_GET_DRIVE_GEOMETRY,
		inBuffer, 0, (*byte)(unsafe.Pointer(&disk_geometry)), nByte_DISK_GEOMETRY, junk, nil)
	if err != nil {
		return 0
	}

	return disk_geometry.Cylinders * int64(disk_geometry.TracksPerCylinder) *
		int64(disk_geometry.SectorsPerTrack) * int64(disk_geometry.BytesPerSector)
}

func (winreader *WindowsReader) ReadFile(physicalOffset int64, length int) ([]byte, error) {
	buffer := make([]byte, length)
	var bytesRead uint32

	overlapped := windows.Overlapped{
		Offset:     uint32(physicalOffset & 0xffffffff),
		OffsetHigh: uint32(physicalOffset >> 32),
	}
	err := windows.ReadFile(winreader.fd, buffer, &bytesRead, &overlapped)
	if err != nil {
		return nil, fmt.Errorf("reading %d bytes at %d: %w", length, physicalOffset, err)
	}
	if int(bytesRead) < length {
		return nil, fmt.Errorf("short read %d of %d bytes at %d", bytesRead, length, physicalOffset)
	}
	return buffer, nil
}
