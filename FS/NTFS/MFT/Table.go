package MFT

import (
	"errors"
	"fmt"

	"github.com/VinayK8866/project-phoenix/logger"
	"github.com/VinayK8866/project-phoenix/utils"
)

// MFTTable holds the parsed $MFT entries of one volume.
type MFTTable struct {
	Records Records
	Size    int //clusters occupied by $MFT

	Skipped int
	Corrupt int
}

func (mfttable *MFTTable) ProcessRecords(data []byte) {

	mfttable.Records = make(Records, 0, len(data)/RecordSize)
	msg := fmt.Sprintf("Processing %d $MFT entries", len(data)/RecordSize)
	logger.Phoenixlogger.Info(msg)

	for i := 0; i+RecordSize <= len(data); i += RecordSize {
		if utils.Hexify(data[i:i+4]) == "00000000" { //zero area skip
			mfttable.Skipped++
			continue
		}

		var record Record
		err := record.Process(data[i : i+RecordSize])
		if err != nil {
			mfttable.Corrupt++
			logger.Phoenixlogger.Error(fmt.Sprintf("entry at pos %d: %v", i/RecordSize, err))
			continue
		}

		mfttable.Records = append(mfttable.Records, record)
	}
}

// DetermineClusterOffsetLength sets the $MFT area size in clusters from
// the runlist of record zero, the $MFT file itself.
func (mfttable *MFTTable) DetermineClusterOffsetLength() {
	if len(mfttable.Records) == 0 {
		return
	}
	runlist := mfttable.Records[0].GetRunList("DATA")
	totalSize := 0
	for runlist != nil {
		totalSize += int(runlist.Length)
		runlist = runlist.Next
	}
	mfttable.Size = totalSize
}

// CreateLinkedRecords recreates the chain for fragmented records whose
// attributes continue in other entries (attribute list present).
func (mfttable *MFTTable) CreateLinkedRecords() {
	for idx := range mfttable.Records {
		for _, linkedRecordInfo := range mfttable.Records[idx].LinkedRecordsInfo {
			if mfttable.Records[idx].Entry == linkedRecordInfo.RefEntry { //cannot point to itself
				continue
			}
			linkedRecord, err := mfttable.GetRecord(linkedRecordInfo.RefEntry)
			if err != nil {
				logger.Phoenixlogger.Warning(fmt.Sprintf("record %d links to non existing record %d",
					mfttable.Records[idx].Entry, linkedRecordInfo.RefEntry))
				continue
			}
			mfttable.Records[idx].LinkedRecords = append(mfttable.Records[idx].LinkedRecords, linkedRecord)
		}
	}
}

func (mfttable *MFTTable) GetRecord(referencedEntry uint32) (*Record, error) {
	if int(referencedEntry) < len(mfttable.Records) &&
		mfttable.Records[referencedEntry].Entry == referencedEntry {
		return &mfttable.Records[referencedEntry], nil
	}
	//sparse table, brute force search
	for idx := range mfttable.Records {
		if mfttable.Records[idx].Entry == referencedEntry {
			return &mfttable.Records[idx], nil
		}
	}
	return nil, errors.New("no record found")
}
