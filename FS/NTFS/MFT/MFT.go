package MFT

import (
	"bytes"
	"fmt"

	MFTAttributes "github.com/VinayK8866/project-phoenix/FS/NTFS/MFT/attributes"
	metadata "github.com/VinayK8866/project-phoenix/FS"
	"github.com/VinayK8866/project-phoenix/reader"
	"github.com/VinayK8866/project-phoenix/utils"
)

var RecordSize = 1024

var MFTflags = map[uint16]string{
	0: "File Unallocated", 1: "File Allocated", 2: "Folder Unallocated", 3: "Folder Allocated",
}

type Records []Record

type Attribute interface {
	FindType() string
	SetHeader(header *MFTAttributes.AttributeHeader)
	GetHeader() MFTAttributes.AttributeHeader
	IsNoNResident() bool
	ShowInfo()
	Parse([]byte)
}

// when attributes span over a record entry
type LinkedRecordInfo struct {
	RefEntry uint32
	StartVCN uint64
}

// MFT Record
type Record struct {
	Signature          string //0-3
	UpdateSeqArrOffset uint16 //4-5   offsets are relative to the start of the entry
	UpdateSeqArrSize   uint16 //6-7
	Lsn                uint64 //8-15  logical file sequence number
	Seq                uint16 //16-17 incremented on allocation or unallocation
	Linkcount          uint16 //18-19 how many directories have entries for this record
	AttrOff            uint16 //20-21 first attribute location
	Flags              uint16 //22-23 tells whether entry is used or not
	Size               uint32 //24-27
	AllocSize          uint32 //28-31
	BaseRef            uint64 //32-39
	NextAttrID         uint16 //40-41
	F1                 uint16 //42-43
	Entry              uint32 //44-47
	Attributes         []Attribute
	LinkedRecordsInfo  []LinkedRecordInfo
	LinkedRecords      []*Record
}

// Process decodes one raw MFT entry, applies the update sequence fixups
// and walks its attribute list.
func (record *Record) Process(bs []byte) error {

	utils.Unmarshal(bs[:48], record)

	if record.Signature == "BAAD" { //skip bad entry
		return fmt.Errorf("%w: entry signed BAAD", metadata.ErrCorruptStructure)
	}
	if record.Signature != "FILE" {
		return fmt.Errorf("%w: unknown entry signature %q", metadata.ErrCorruptStructure, record.Signature)
	}

	if err := record.applyFixups(bs); err != nil {
		return err
	}

	record.Attributes = nil
	record.LinkedRecordsInfo = nil
	record.LinkedRecords = nil

	ReadPtr := uint32(record.AttrOff) //offset to first attribute
	for ReadPtr+16 <= uint32(len(bs)) {

		if utils.Hexify(bs[ReadPtr:ReadPtr+4]) == "ffffffff" { //end of attributes
			break
		}

		var attrHeader MFTAttributes.AttributeHeader
		utils.Unmarshal(bs[ReadPtr:ReadPtr+16], &attrHeader)

		if attrHeader.IsLast() {
			break
		}
		if attrHeader.AttrLen == 0 || ReadPtr+attrHeader.AttrLen > uint32(len(bs)) {
			return fmt.Errorf("%w: attribute at %d overruns entry", metadata.ErrCorruptStructure, ReadPtr)
		}

		if !attrHeader.IsNoNResident() { //resident attribute
			record.processResidentAttribute(&attrHeader, bs, ReadPtr)
		} else {
			record.processNoNResidentAttribute(&attrHeader, bs, ReadPtr)
		}

		ReadPtr += attrHeader.AttrLen
	}
	return nil
}

func (record *Record) processResidentAttribute(attrHeader *MFTAttributes.AttributeHeader,
	bs []byte, ReadPtr uint32) {

	var attr Attribute

	atrRecordResident := new(MFTAttributes.ATRrecordResident)
	atrRecordResident.Parse(bs[ReadPtr+16:])
	if attrHeader.Nlen > 0 &&
		int(ReadPtr)+int(attrHeader.NameOff)+2*int(attrHeader.Nlen) <= len(bs) {
		atrRecordResident.Name = utils.DecodeUTF16(bs[ReadPtr+uint32(attrHeader.NameOff) : ReadPtr+
			uint32(attrHeader.NameOff)+2*uint32(attrHeader.Nlen)])
	}
	attrHeader.ATRrecordResident = atrRecordResident

	contentStart := ReadPtr + uint32(atrRecordResident.OffsetContent)
	contentEnd := contentStart + atrRecordResident.ContentSize
	if contentEnd > uint32(len(bs)) || contentStart > contentEnd {
		return //content overruns entry, skip attribute
	}
	content := bs[contentStart:contentEnd]

	if attrHeader.IsFileName() {
		attr = &MFTAttributes.FNAttribute{}
	} else if attrHeader.IsStdInfo() {
		attr = &MFTAttributes.SIAttribute{}
	} else if attrHeader.IsData() {
		attr = &MFTAttributes.DATA{}
	} else if attrHeader.IsAttrList() {
		attr = &MFTAttributes.AttributeListEntries{}
	} else {
		return //attribute type not tracked for recovery
	}
	attr.Parse(content)
	attr.SetHeader(attrHeader)
	record.Attributes = append(record.Attributes, attr)

	if attrHeader.IsAttrList() {
		attrListEntries := attr.(*MFTAttributes.AttributeListEntries)
		for _, entry := range attrListEntries.Entries {
			if entry.GetType() != "DATA" || uint32(entry.ParRef) == record.Entry {
				continue
			}
			record.LinkedRecordsInfo = append(record.LinkedRecordsInfo,
				LinkedRecordInfo{RefEntry: uint32(entry.ParRef), StartVCN: entry.StartVcn})
		}
	}
}

func (record *Record) processNoNResidentAttribute(attrHeader *MFTAttributes.AttributeHeader,
	bs []byte, ReadPtr uint32) {

	atrNoNRecordResident := new(MFTAttributes.ATRrecordNoNResident)
	utils.Unmarshal(bs[ReadPtr+16:ReadPtr+64], atrNoNRecordResident)

	if uint32(atrNoNRecordResident.RunOff) < attrHeader.AttrLen {
		runlist := new(MFTAttributes.RunList)
		runlist.Process(bs[ReadPtr+uint32(atrNoNRecordResident.RunOff) : ReadPtr+attrHeader.AttrLen])
		atrNoNRecordResident.RunList = runlist
	}
	attrHeader.ATRrecordNoNResident = atrNoNRecordResident

	if attrHeader.IsData() {
		data := &MFTAttributes.DATA{}
		data.SetHeader(attrHeader)
		record.Attributes = append(record.Attributes, data)
	} else if attrHeader.IsAttrList() {
		attrListEntries := new(MFTAttributes.AttributeListEntries)
		attrListEntries.SetHeader(attrHeader)
		record.Attributes = append(record.Attributes, attrListEntries)
	}
	//other non resident attribute types are not tracked for recovery
}

// applyFixups restores the sector tail bytes stashed in the update
// sequence array, verifying the tail matches the sequence number first.
func (record *Record) applyFixups(bs []byte) error {
	count := int(record.UpdateSeqArrSize)
	offset := int(record.UpdateSeqArrOffset)
	if count <= 1 {
		return nil
	}
	if offset+2*count > len(bs) {
		return fmt.Errorf("%w: update sequence array overruns entry", metadata.ErrCorruptStructure)
	}
	usn := bs[offset : offset+2]
	for i := 1; i < count; i++ {
		sectorEnd := i * 512
		if sectorEnd > len(bs) {
			break
		}
		if !bytes.Equal(bs[sectorEnd-2:sectorEnd], usn) {
			return fmt.Errorf("%w: fixup mismatch at sector %d of entry %d",
				metadata.ErrCorruptStructure, i, record.Entry)
		}
		copy(bs[sectorEnd-2:sectorEnd], bs[offset+2*i:offset+2*i+2])
	}
	return nil
}

func (record Record) IsDeleted() bool {
	return record.Flags&0x1 == 0
}

func (record Record) IsFolder() bool {
	return record.Flags&0x2 != 0
}

func (record Record) GetType() string {
	return MFTflags[record.Flags&0x3]
}

func (record Record) FindAttribute(attributeName string) Attribute {
	for _, attribute := range record.Attributes {
		if attribute.FindType() == attributeName {
			return attribute
		}
	}
	return nil
}

func (record Record) HasAttr(attrName string) bool {
	return record.FindAttribute(attrName) != nil
}

func (record Record) FindNonResidentAttributes() []Attribute {
	return utils.Filter(record.Attributes, func(attribute Attribute) bool {
		return attribute.IsNoNResident()
	})
}

func (record Record) HasResidentDataAttr() bool {
	attribute := record.FindAttribute("DATA")
	return attribute != nil && !attribute.IsNoNResident()
}

func (record Record) GetResidentData() []byte {
	return record.FindAttribute("DATA").(*MFTAttributes.DATA).Content
}

func (record Record) GetRunList(attrType string) *MFTAttributes.RunList {
	attr := record.FindAttribute(attrType)
	if attr == nil || !attr.IsNoNResident() {
		return nil
	}
	return attr.GetHeader().ATRrecordNoNResident.RunList
}

// GetDataExtents resolves the DATA runlist to absolute byte extents by
// accumulating the running cluster position, each run's offset is
// relative to the previous run's start.
func (record Record) GetDataExtents(partitionOffsetB int64, clusterSizeB int64) []reader.Extent {
	var extents []reader.Extent
	runlist := record.GetRunList("DATA")
	clusterPosition := int64(0)

	for runlist != nil {
		clusterPosition += runlist.Offset
		extents = append(extents, reader.Extent{
			Offset: partitionOffsetB + clusterPosition*clusterSizeB,
			Length: int64(runlist.Length) * clusterSizeB,
		})
		runlist = runlist.Next
	}
	return extents
}

func (record Record) GetFnames() map[string]string {
	fnAttributes := utils.Filter(record.Attributes, func(attribute Attribute) bool {
		return attribute.FindType() == "FileName"
	})
	fnames := make(map[string]string, len(fnAttributes))
	for _, attr := range fnAttributes {
		fnattr := attr.(*MFTAttributes.FNAttribute)
		fnames[fnattr.GetFileNameType()] = fnattr.Fname
	}
	return fnames
}

func (record Record) GetFname() string {
	fnames := record.GetFnames()
	for _, namescheme := range []string{"POSIX", "Win32", "Win32 & Dos", "Dos"} {
		name, ok := fnames[namescheme]
		if ok {
			return name
		}
	}
	return "-"
}

func (record Record) GetLogicalFileSize() int64 {
	attr := record.FindAttribute("FileName")
	if attr != nil {
		fnattr := attr.(*MFTAttributes.FNAttribute)
		if fnattr.RealFsize != 0 {
			return int64(fnattr.RealFsize)
		}
	}
	dataAttr := record.FindAttribute("DATA")
	if dataAttr != nil && dataAttr.IsNoNResident() {
		return int64(dataAttr.GetHeader().ATRrecordNoNResident.ActualLength)
	}
	if record.HasResidentDataAttr() {
		return int64(len(record.GetResidentData()))
	}
	return 0
}

func (record Record) ShowAttributes(attrType string) {
	fmt.Printf("%d %d %s \n", record.Entry, record.Seq, record.GetType())
	var attributes []Attribute
	if attrType == "any" {
		attributes = record.Attributes
	} else {
		attributes = utils.Filter(record.Attributes, func(attribute Attribute) bool {
			return attribute.FindType() == attrType
		})
	}

	for _, attribute := range attributes {
		attribute.ShowInfo()
	}
}
