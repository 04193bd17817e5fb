package img

import (
	"errors"
	"path"
	"path/filepath"
	"strings"

	extent "github.com/aarsakian/VMDK_Reader/extent"
)

// VMDKReader serves VMDK sparse images.
type VMDKReader struct {
	PathToEvidenceFiles string
	fd                  extent.Extents
}

func (imgreader *VMDKReader) CreateHandler() error {
	extension := path.Ext(imgreader.PathToEvidenceFiles)
	if strings.ToLower(extension) != ".vmdk" {
		return errors.New("only VMDK sparse images are supported")
	}
	imgreader.fd = extent.ProcessExtents(imgreader.PathToEvidenceFiles)
	return nil
}

func (imgreader *VMDKReader) CloseHandler() {

}

func (imgreader *VMDKReader) ReadFile(physicalOffset int64, length int) ([]byte, error) {
	return imgreader.fd.RetrieveData(filepath.Dir(imgreader.PathToEvidenceFiles),
		physicalOffset, int64(length)), nil
}

func (imgreader *VMDKReader) GetDiskSize() int64 {
	return imgreader.fd.GetHDSize()
}
