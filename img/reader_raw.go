package img

import (
	"fmt"
	"io"
	"os"
)

// RawReader serves flat dd style images and loopback files.
type RawReader struct {
	PathToEvidenceFiles string
	fd                  *os.File
	size                int64
}

func (rawreader *RawReader) CreateHandler() error {
	fd, err := os.OpenFile(rawreader.PathToEvidenceFiles, os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("opening %s: %w", rawreader.PathToEvidenceFiles, err)
	}
	finfo, err := fd.Stat()
	if err != nil {
		fd.Close()
		return fmt.Errorf("stat %s: %w", rawreader.PathToEvidenceFiles, err)
	}
	rawreader.fd = fd
	rawreader.size = finfo.Size()
	return nil
}

func (rawreader *RawReader) CloseHandler() {
	rawreader.fd.Close()
}

func (rawreader *RawReader) ReadFile(physicalOffset int64, length int) ([]byte, error) {
	buffer := make([]byte, length)
	n, err := rawreader.fd.ReadAt(buffer, physicalOffset)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading %d bytes at %d: %w", length, physicalOffset, err)
	}
	if n < length {
		return nil, fmt.Errorf("short read %d of %d bytes at %d", n, length, physicalOffset)
	}
	return buffer, nil
}

func (rawreader *RawReader) GetDiskSize() int64 {
	return rawreader.size
}
