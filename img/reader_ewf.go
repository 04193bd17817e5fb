package img

import (
	"errors"
	"path"
	"strings"

	ewfLib "github.com/aarsakian/EWF_Reader/ewf"

	"github.com/VinayK8866/project-phoenix/utils"
)

// EWFReader serves EWF/E01 segmented evidence images.
type EWFReader struct {
	PathToEvidenceFiles string
	fd                  ewfLib.EWF_Image
}

func (imgreader *EWFReader) CreateHandler() error {
	extension := path.Ext(imgreader.PathToEvidenceFiles)
	if strings.ToLower(extension) != ".e01" {
		return errors.New("only EWF images are supported")
	}
	var ewf_image ewfLib.EWF_Image
	filenames := utils.FindEvidenceFiles(imgreader.PathToEvidenceFiles)

	ewf_image.ParseEvidence(filenames)

	imgreader.fd = ewf_image
	return nil
}

func (imgreader *EWFReader) CloseHandler() {

}

func (imgreader *EWFReader) ReadFile(physicalOffset int64, length int) ([]byte, error) {
	return imgreader.fd.RetrieveData(physicalOffset, int64(length)), nil
}

func (imgreader *EWFReader) GetDiskSize() int64 {
	return int64(imgreader.fd.Chuncksize) * int64(imgreader.fd.NofChunks)
}
