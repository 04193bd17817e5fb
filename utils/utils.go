package utils

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/unicode"
)

type NoNull string

// AskedFile travels from the data-locating workers to the exporter.
type AskedFile struct {
	Fname   string
	Id      int
	Content []byte
}

type WindowsTime struct {
	Stamp uint64
}

// ConvertToIsoTime maps a FILETIME (100ns ticks since 1601) to ISO8601.
func (winTime WindowsTime) ConvertToIsoTime() string {
	return winTime.ToTime().Format("2006-01-02T15:04:05")
}

func (winTime WindowsTime) ToTime() time.Time {
	x := winTime.Stamp/10000000 - 11644473600
	return time.Unix(int64(x), 0).UTC()
}

// DOSTime decodes the packed FAT date/time pair.
func DOSTime(date uint16, timeval uint16) time.Time {
	year := int(date>>9) + 1980
	month := time.Month((date >> 5) & 0x0f)
	day := int(date & 0x1f)
	hour := int(timeval >> 11)
	minute := int((timeval >> 5) & 0x3f)
	sec := int(timeval&0x1f) * 2
	return time.Date(year, month, day, hour, minute, sec, 0, time.UTC)
}

func readEndianInt(barray []byte) uint64 {
	var sum uint64
	for index, val := range barray {
		sum += uint64(val) << uint(index*8)
	}
	return sum
}

func ReadEndianUInt(barray []byte) uint64 {
	return readEndianInt(barray)
}

// ReadEndianInt sign extends, data run offsets are relative to the
// previous run and may move backwards.
func ReadEndianInt(barray []byte) int64 {
	if len(barray) == 0 {
		return 0
	}
	val := readEndianInt(barray)
	if barray[len(barray)-1]&0x80 != 0 { //negative
		for i := len(barray); i < 8; i++ {
			val |= uint64(0xff) << uint(i*8)
		}
	}
	return int64(val)
}

// DetermineClusterOffsetLength splits the run header byte into the byte
// counts of the offset and length fields that follow it.
func DetermineClusterOffsetLength(val byte) (uint64, uint64) {
	return uint64(val >> 4), uint64(val & 0x0f)
}

func (str *NoNull) PrintNulls() string {
	var newstr []string
	for _, v := range *str {
		if v != 0 {
			newstr = append(newstr, string(v))
		}
	}
	return strings.Join(newstr, "")
}

func Hexify(barray []byte) string {
	return hex.EncodeToString(barray)
}

func Bytereverse(barray []byte) []byte { //work with indexes
	for i, j := 0, len(barray)-1; i < j; i, j = i+1, j-1 {
		barray[i], barray[j] = barray[j], barray[i]
	}
	return barray
}

// StringifyGUID renders an on-disk GUID (mixed endianness per the GPT
// layout) in its canonical textual form.
func StringifyGUID(barray []byte) string {
	if len(barray) != 16 {
		return Hexify(barray)
	}
	rfc := []byte{barray[3], barray[2], barray[1], barray[0],
		barray[5], barray[4], barray[7], barray[6]}
	rfc = append(rfc, barray[8:]...)
	id, err := uuid.FromBytes(rfc)
	if err != nil {
		return Hexify(barray)
	}
	return id.String()
}

func NewUUID() string {
	return uuid.NewString()
}

var utf16Decoder = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

func DecodeUTF16(b []byte) string {
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}
	decoded, err := utf16Decoder.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(decoded)
}

func EncodeUTF16(s string) []byte {
	encoded, err := utf16Decoder.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return encoded
}

func Filter[T any](vals []T, check func(T) bool) []T {
	var filtered []T
	for _, val := range vals {
		if check(val) {
			filtered = append(filtered, val)
		}
	}
	return filtered
}

// SanitizeFname strips characters the host OS rejects in file names.
func SanitizeFname(fname string) string {
	var b strings.Builder
	for _, r := range fname {
		switch r {
		case '\\', '/', ':', '*', '?', '"', '<', '>', '|', 0:
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

func ReadFile(filename string) ([]byte, int, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, 0, err
	}
	defer file.Close()

	fsize, err := file.Stat() //file size
	if err != nil {
		return nil, 0, err
	}

	data := make([]byte, fsize.Size())

	_, err = file.Read(data)
	if err != nil {
		return nil, 0, err
	}
	return data, int(fsize.Size()), nil
}

func WriteFile(fullpath string, data []byte) error {
	err := os.WriteFile(fullpath, data, 0640)
	if err != nil {
		return fmt.Errorf("writing %s: %w", fullpath, err)
	}
	return nil
}

// Unmarshal decodes an on-disk little endian structure into the fields of
// v, in declaration order. String fields are resolved by name since the
// formats pack them in irregular ways.
func Unmarshal(data []byte, v interface{}) error {
	idx := 0
	structValPtr := reflect.ValueOf(v)
	structType := reflect.TypeOf(v)
	if structType.Elem().Kind() != reflect.Struct {
		return errors.New("must be a struct")
	}
	for i := 0; i < structValPtr.Elem().NumField(); i++ {
		field := structValPtr.Elem().Field(i) //StructField type
		name := structType.Elem().Field(i).Name
		if !field.CanSet() { //unexported bookkeeping, holds no disk data
			continue
		}
		switch field.Kind() {
		case reflect.String:
			if name == "Signature" {
				field.SetString(string(data[idx : idx+4]))
				idx += 4
			} else if name == "Type" {
				field.SetString(Hexify(Bytereverse(append([]byte{}, data[idx:idx+4]...))))
				idx += 4
			}
		case reflect.Struct:
			if field.Type() != reflect.TypeOf(WindowsTime{}) {
				continue
			}
			var windowsTime WindowsTime
			Unmarshal(data[idx:idx+8], &windowsTime)
			field.Set(reflect.ValueOf(windowsTime))
			idx += 8
		case reflect.Array:
			arr := reflect.New(field.Type()).Elem()
			reflect.Copy(arr, reflect.ValueOf(data[idx:idx+field.Len()]))
			field.Set(arr)
			idx += field.Len()
		case reflect.Uint8:
			field.SetUint(uint64(data[idx]))
			idx += 1
		case reflect.Uint16:
			var temp uint16
			binary.Read(bytes.NewBuffer(data[idx:idx+2]), binary.LittleEndian, &temp)
			field.SetUint(uint64(temp))
			idx += 2
		case reflect.Uint32:
			var temp uint32
			binary.Read(bytes.NewBuffer(data[idx:idx+4]), binary.LittleEndian, &temp)
			field.SetUint(uint64(temp))
			idx += 4
		case reflect.Uint64:
			var temp uint64
			if name == "ParRef" { //file reference packs a 6 byte entry id
				binary.Read(bytes.NewBuffer(append(append([]byte{}, data[idx:idx+6]...), 0x00, 0x00)),
					binary.LittleEndian, &temp)
				idx += 6
			} else {
				binary.Read(bytes.NewBuffer(data[idx:idx+8]), binary.LittleEndian, &temp)
				idx += 8
			}
			field.SetUint(temp)
		case reflect.Bool:
			field.SetBool(false)
			idx += 1
		}
	}
	return nil
}
