package attributes

import (
	"fmt"

	"github.com/VinayK8866/project-phoenix/utils"
)

var AttrTypes = map[string]string{
	"00000010": "Standard Information", "00000020": "Attribute List",
	"00000030": "FileName", "00000040": "Object ID",
	"00000050": "Security Descriptor", "00000060": "Volume Name",
	"00000070": "Volume Information", "00000080": "DATA",
	"00000090": "Index Root", "000000a0": "Index Allocation",
	"000000b0": "BitMap", "000000c0": "Reparse Point",
	"000000e0": "Extended Attribute", "000000f0": "Extended Attribute Information",
	"00000100": "Logged Utility Stream",
	"ffffffff": "Last",
}

type AttributeHeader struct {
	Type                 string //0-3    type of attribute e.g. $DATA
	AttrLen              uint32 //4-7    length of attribute
	NoNResident          uint8  //8
	Nlen                 uint8  //9
	NameOff              uint16 //10-11  relative to the start of attribute
	Flags                uint16 //12-13  compressed, sparse, encrypted
	ID                   uint16 //14-15
	ATRrecordResident    *ATRrecordResident
	ATRrecordNoNResident *ATRrecordNoNResident
}

type ATRrecordResident struct {
	ContentSize   uint32 //16-19 size of resident attribute
	OffsetContent uint16 //20-21 offset to content
	IdxFlags      uint16 //22-23
	Name          string
}

type ATRrecordNoNResident struct {
	StartVcn     uint64 //16-23
	LastVcn      uint64 //24-31
	RunOff       uint16 //32-33 offset to the runlist
	Compusize    uint16 //34-35
	F1           uint32 //36-39
	Length       uint64 //40-47 allocated length
	ActualLength uint64 //48-55
	InitLength   uint64 //56-63
	RunList      *RunList
}

// RunList is one data run. Offset is in clusters, relative to the
// previous run per the format's compression scheme.
type RunList struct {
	Offset int64
	Length uint64
	Next   *RunList
}

type DATA struct {
	Content []byte
	Header  *AttributeHeader
}

func (data *DATA) SetHeader(header *AttributeHeader) {
	data.Header = header
}

func (data DATA) GetHeader() AttributeHeader {
	return *data.Header
}

func (data DATA) FindType() string {
	return data.Header.GetType()
}

func (data DATA) IsNoNResident() bool {
	return data.Header.IsNoNResident()
}

func (data *DATA) Parse(buf []byte) {
	data.Content = buf
}

func (data DATA) ShowInfo() {
	fmt.Printf("type %s %t \n", data.FindType(), data.IsNoNResident())
}

func (attrHeader AttributeHeader) GetType() string {
	attrType, ok := AttrTypes[attrHeader.Type]
	if ok {
		return attrType
	}
	return attrHeader.Type
}

func (attrHeader AttributeHeader) IsLast() bool {
	return attrHeader.GetType() == "Last"
}

func (attrHeader AttributeHeader) IsFileName() bool {
	return attrHeader.GetType() == "FileName"
}

func (attrHeader AttributeHeader) IsData() bool {
	return attrHeader.GetType() == "DATA"
}

func (attrHeader AttributeHeader) IsAttrList() bool {
	return attrHeader.GetType() == "Attribute List"
}

func (attrHeader AttributeHeader) IsStdInfo() bool {
	return attrHeader.GetType() == "Standard Information"
}

func (attrHeader AttributeHeader) IsNoNResident() bool {
	return attrHeader.NoNResident == 1
}

func (atrRecordResident *ATRrecordResident) Parse(data []byte) {
	utils.Unmarshal(data[:8], atrRecordResident)
}

// Process decodes the packed runlist bytes into the linked run sequence.
// Each entry's first byte carries the byte widths of the length and
// offset fields that follow, a zero header byte terminates the list.
func (prevRunlist *RunList) Process(runlists []byte) {
	clusterPtr := uint64(0)
	first := true

	for clusterPtr < uint64(len(runlists)) {
		ClusterOffsB, ClusterLenB := utils.DetermineClusterOffsetLength(runlists[clusterPtr])
		if ClusterLenB == 0 || ClusterOffsB == 0 {
			break
		}
		if clusterPtr+ClusterLenB+ClusterOffsB+1 > uint64(len(runlists)) {
			break
		}

		clustersLen := utils.ReadEndianUInt(runlists[clusterPtr+1 : clusterPtr+
			ClusterLenB+1])
		clustersOff := utils.ReadEndianInt(runlists[clusterPtr+1+
			ClusterLenB : clusterPtr+ClusterLenB+ClusterOffsB+1])

		runlist := RunList{Offset: clustersOff, Length: clustersLen}

		if first {
			*prevRunlist = runlist
			first = false
		} else {
			prevRunlist.Next = &runlist
			prevRunlist = &runlist
		}

		clusterPtr += ClusterLenB + ClusterOffsB + 1
	}
}
