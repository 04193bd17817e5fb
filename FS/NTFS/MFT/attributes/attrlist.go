package attributes

import (
	"fmt"

	"github.com/VinayK8866/project-phoenix/utils"
)

// AttributeListEntry references an attribute stored in another MFT
// record, used when a record's attributes no longer fit in one entry.
type AttributeListEntry struct {
	Type     string //0-3
	Len      uint16 //4-5
	Nlen     uint8  //6
	NameOff  uint8  //7
	StartVcn uint64 //8-15
	ParRef   uint64 //16-21 referenced entry number
	ParSeq   uint16 //22-23
	ID       uint16 //24-25
	Name     string
}

type AttributeListEntries struct {
	Entries []AttributeListEntry
	Header  *AttributeHeader
}

func (entry AttributeListEntry) GetType() string {
	attrType, ok := AttrTypes[entry.Type]
	if ok {
		return attrType
	}
	return entry.Type
}

func (attrListEntries *AttributeListEntries) SetHeader(header *AttributeHeader) {
	attrListEntries.Header = header
}

func (attrListEntries AttributeListEntries) GetHeader() AttributeHeader {
	return *attrListEntries.Header
}

func (attrListEntries AttributeListEntries) FindType() string {
	return attrListEntries.Header.GetType()
}

func (attrListEntries AttributeListEntries) IsNoNResident() bool {
	return attrListEntries.Header.IsNoNResident()
}

func (attrListEntries *AttributeListEntries) Parse(data []byte) {
	pos := 0
	for pos+26 <= len(data) {
		var entry AttributeListEntry
		utils.Unmarshal(data[pos:pos+26], &entry)
		if entry.Len < 26 { //malformed entry, stop before looping
			break
		}
		if int(entry.NameOff)+2*int(entry.Nlen) <= int(entry.Len) && entry.Nlen > 0 {
			entry.Name = utils.DecodeUTF16(data[pos+int(entry.NameOff) : pos+
				int(entry.NameOff)+2*int(entry.Nlen)])
		}
		attrListEntries.Entries = append(attrListEntries.Entries, entry)
		pos += int(entry.Len)
	}
}

func (attrListEntries AttributeListEntries) ShowInfo() {
	for _, entry := range attrListEntries.Entries {
		fmt.Printf("type %s ref entry %d start vcn %d\n", entry.GetType(),
			entry.ParRef, entry.StartVcn)
	}
}
