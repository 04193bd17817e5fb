package attributes

import (
	"fmt"

	"github.com/VinayK8866/project-phoenix/utils"
)

var NameSpaceFlags = map[uint8]string{
	0: "POSIX", 1: "Win32", 2: "Dos", 3: "Win32 & Dos",
}

const FlagDirectory = 0x10000000

type FNAttribute struct {
	ParRef     uint64 //0-5 entry number of the parent record
	ParSeq     uint16 //6-7
	Crtime     utils.WindowsTime
	Mtime      utils.WindowsTime
	MFTmtime   utils.WindowsTime
	Atime      utils.WindowsTime
	AllocFsize uint64
	RealFsize  uint64
	Flags      uint32
	Reparse    uint32
	Nlen       uint8 //length of name
	Nspace     uint8 //format of name
	Fname      string
	Header     *AttributeHeader
}

func (fnattr *FNAttribute) SetHeader(header *AttributeHeader) {
	fnattr.Header = header
}

func (fnattr FNAttribute) GetHeader() AttributeHeader {
	return *fnattr.Header
}

func (fnattr FNAttribute) FindType() string {
	return fnattr.Header.GetType()
}

func (fnattr FNAttribute) IsNoNResident() bool {
	return fnattr.Header.IsNoNResident() //always resident
}

func (fnattr FNAttribute) IsFolder() bool {
	return fnattr.Flags&FlagDirectory != 0
}

func (fnattr FNAttribute) GetFileNameType() string {
	return NameSpaceFlags[fnattr.Nspace]
}

func (fnattr FNAttribute) GetTimestamps() (string, string, string, string) {
	atime := fnattr.Atime.ConvertToIsoTime()
	ctime := fnattr.Crtime.ConvertToIsoTime()
	mtime := fnattr.Mtime.ConvertToIsoTime()
	mftime := fnattr.MFTmtime.ConvertToIsoTime()
	return atime, ctime, mtime, mftime
}

func (fnattr *FNAttribute) Parse(data []byte) {
	if len(data) < 66 {
		return
	}
	utils.Unmarshal(data[:66], fnattr)
	if 66+2*int(fnattr.Nlen) <= len(data) {
		fnattr.Fname = utils.DecodeUTF16(data[66 : 66+2*uint16(fnattr.Nlen)])
	}
}

func (fnattr FNAttribute) ShowInfo() {
	atime, ctime, mtime, mfttime := fnattr.GetTimestamps()
	fmt.Printf("type %s Par Ref %d name %s atime %s ctime %s mtime %s mfttime %s\n",
		fnattr.FindType(), fnattr.ParRef, fnattr.Fname, atime, ctime, mtime, mfttime)
}
