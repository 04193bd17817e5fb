package exporter

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/VinayK8866/project-phoenix/logger"
	"github.com/VinayK8866/project-phoenix/manifest"
	"github.com/VinayK8866/project-phoenix/reader"
	"github.com/VinayK8866/project-phoenix/utils"
)

// Exporter writes recovered content to a destination that must be
// distinct from the source device. The write target is the only place
// the whole system ever writes file data.
type Exporter struct {
	Location string
	Hash     string //"", "MD5" or "SHA1"
}

// Export pulls each entry's content off the device and writes it under
// the destination, directory entries only create their folder.
func (exp Exporter) Export(br *reader.BlockReader, entries []manifest.Entry) error {
	if err := os.MkdirAll(exp.Location, 0750); err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.Dir {
			continue
		}
		data, err := exp.collect(br, entry)
		if err != nil {
			logger.Phoenixlogger.Error(fmt.Sprintf("export of %s failed: %v", entry.OutputName(), err))
			continue
		}
		fname := utils.SanitizeFname(entry.OutputName())
		if err := utils.WriteFile(filepath.Join(exp.Location, fname), data); err != nil {
			logger.Phoenixlogger.Error(fmt.Sprintf("writing %s: %v", fname, err))
			continue
		}
		if exp.Hash != "" {
			exp.showHash(fname, data)
		}
	}
	return nil
}

// collect reassembles an entry by reading its extents in order,
// truncated to the logical size. Resident content needs no device read.
func (exp Exporter) collect(br *reader.BlockReader, entry manifest.Entry) ([]byte, error) {
	if entry.Resident != nil {
		return entry.Resident, nil
	}
	var data []byte
	for _, extent := range entry.Extents {
		part, err := br.Read(extent)
		if err != nil {
			return nil, err
		}
		data = append(data, part...)
	}
	if entry.Size > 0 && int64(len(data)) > entry.Size {
		data = data[:entry.Size]
	}
	return data, nil
}

func (exp Exporter) showHash(fname string, data []byte) {
	switch exp.Hash {
	case "MD5":
		fmt.Printf("%s MD5 %s\n", fname, utils.GetMD5(data))
	case "SHA1":
		fmt.Printf("%s SHA1 %s\n", fname, utils.GetSHA1(data))
	default:
		fmt.Printf("only MD5 or SHA1 supported, not %s\n", exp.Hash)
	}
}
