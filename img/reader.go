package img

// DiskReader is the lowest layer touching physical media. Every
// implementation opens its source read-only, no write method exists on
// purpose.
type DiskReader interface {
	CreateHandler() error
	CloseHandler()
	ReadFile(int64, int) ([]byte, error)
	GetDiskSize() int64
}

func GetHandler(pathToDisk string, mode string) (DiskReader, error) {

	var dr DiskReader
	switch mode {
	case "physicalDrive":
		dr = newPhysicalDriveReader(pathToDisk)
	case "ewf":
		dr = &EWFReader{PathToEvidenceFiles: pathToDisk}
	case "vmdk":
		dr = &VMDKReader{PathToEvidenceFiles: pathToDisk}
	default:
		dr = &RawReader{PathToEvidenceFiles: pathToDisk}
	}
	err := dr.CreateHandler()
	if err != nil {
		return nil, err
	}
	return dr, nil
}
