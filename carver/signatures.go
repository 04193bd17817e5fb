package carver

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Signature describes one carvable file type. Header and Footer are hex
// encoded byte patterns, "??" marks a wildcard byte in the header.
type Signature struct {
	Name      string `json:"name"`
	Extension string `json:"extension"`
	Header    string `json:"header"`
	Footer    string `json:"footer,omitempty"`
	MaxSizeB  int64  `json:"max_size,omitempty"`

	header pattern
	footer []byte
}

type pattern struct {
	bytes []byte
	mask  []bool //true means the byte must match
}

func (p pattern) len() int {
	return len(p.bytes)
}

// matchAt tests the pattern against data at position i, a partial fit at
// the buffer end is no match, the overlap of the next chunk retries it.
func (p pattern) matchAt(data []byte, i int) bool {
	if i+len(p.bytes) > len(data) {
		return false
	}
	for j, b := range p.bytes {
		if p.mask[j] && data[i+j] != b {
			return false
		}
	}
	return true
}

func parsePattern(encoded string) (pattern, error) {
	if len(encoded)%2 != 0 {
		return pattern{}, fmt.Errorf("pattern %q has odd length", encoded)
	}
	p := pattern{
		bytes: make([]byte, len(encoded)/2),
		mask:  make([]bool, len(encoded)/2),
	}
	for i := 0; i < len(encoded); i += 2 {
		if encoded[i:i+2] == "??" {
			continue
		}
		decoded, err := hex.DecodeString(encoded[i : i+2])
		if err != nil {
			return pattern{}, fmt.Errorf("pattern %q: %v", encoded, err)
		}
		p.bytes[i/2] = decoded[0]
		p.mask[i/2] = true
	}
	return p, nil
}

const defaultMaxSizeB = 100 * 1024 * 1024

// DefaultSignatures covers the common photo, document, archive and media
// formats. RIFF containers are told apart by their form type at offset
// eight, MP4 by the ftyp box following the wildcard size byte.
func DefaultSignatures() []Signature {
	return []Signature{
		{Name: "JPEG", Extension: ".jpg", Header: "FFD8FF", Footer: "FFD9", MaxSizeB: 20 * 1024 * 1024},
		{Name: "PNG", Extension: ".png", Header: "89504E470D0A1A0A", Footer: "49454E44AE426082", MaxSizeB: 20 * 1024 * 1024},
		{Name: "GIF", Extension: ".gif", Header: "47494638", Footer: "003B", MaxSizeB: 15 * 1024 * 1024},
		{Name: "BMP", Extension: ".bmp", Header: "424D", MaxSizeB: 30 * 1024 * 1024},
		{Name: "PDF", Extension: ".pdf", Header: "255044462D", Footer: "2525454F46", MaxSizeB: 50 * 1024 * 1024},
		{Name: "ZIP", Extension: ".zip", Header: "504B0304", Footer: "504B0506"},
		{Name: "DOC", Extension: ".doc", Header: "D0CF11E0A1B11AE1", MaxSizeB: 50 * 1024 * 1024},
		{Name: "MP4", Extension: ".mp4", Header: "000000??66747970", MaxSizeB: 4 * 1024 * 1024 * 1024},
		{Name: "AVI", Extension: ".avi", Header: "52494646????????41564920", MaxSizeB: 4 * 1024 * 1024 * 1024},
		{Name: "WAV", Extension: ".wav", Header: "52494646????????57415645", MaxSizeB: 1024 * 1024 * 1024},
		{Name: "MP3", Extension: ".mp3", Header: "494433", MaxSizeB: 20 * 1024 * 1024},
	}
}

// Database is the compiled signature set, read-only after construction
// and safe to share across carvers without locking.
type Database struct {
	Signatures []Signature

	dispatch     map[byte][]*Signature //keyed by first header byte
	anyLead      []*Signature          //wildcard first byte, tried everywhere
	maxHeaderLen int
	maxFooterLen int
}

func NewDatabase(signatures []Signature) (*Database, error) {
	if len(signatures) == 0 {
		signatures = DefaultSignatures()
	}
	db := &Database{
		Signatures: signatures,
		dispatch:   make(map[byte][]*Signature),
	}
	for idx := range db.Signatures {
		sig := &db.Signatures[idx]
		header, err := parsePattern(sig.Header)
		if err != nil {
			return nil, fmt.Errorf("signature %q: %v", sig.Name, err)
		}
		if header.len() == 0 {
			return nil, fmt.Errorf("signature %q has no header", sig.Name)
		}
		sig.header = header
		if sig.Footer != "" {
			footer, err := hex.DecodeString(sig.Footer)
			if err != nil {
				return nil, fmt.Errorf("signature %q footer: %v", sig.Name, err)
			}
			sig.footer = footer
			if len(footer) > db.maxFooterLen {
				db.maxFooterLen = len(footer)
			}
		}
		if sig.MaxSizeB <= 0 {
			sig.MaxSizeB = defaultMaxSizeB
		}
		if sig.Extension == "" {
			sig.Extension = ".bin"
		} else if !strings.HasPrefix(sig.Extension, ".") {
			sig.Extension = "." + sig.Extension
		}
		if header.len() > db.maxHeaderLen {
			db.maxHeaderLen = header.len()
		}

		if header.mask[0] {
			db.dispatch[header.bytes[0]] = append(db.dispatch[header.bytes[0]], sig)
		} else {
			db.anyLead = append(db.anyLead, sig)
		}
	}
	//bake the wildcard-lead signatures into every bucket so candidates
	//never allocates during the scan
	for b, sigs := range db.dispatch {
		db.dispatch[b] = append(append([]*Signature{}, sigs...), db.anyLead...)
	}
	return db, nil
}

// LoadDatabase reads a JSON signature list from path, an empty path
// yields the embedded defaults.
func LoadDatabase(path string) (*Database, error) {
	if path == "" {
		return NewDatabase(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("signature database: %v", err)
	}
	var signatures []Signature
	if err := json.Unmarshal(data, &signatures); err != nil {
		return nil, fmt.Errorf("signature database %s: %v", path, err)
	}
	return NewDatabase(signatures)
}

// MaxHeaderLen sizes the chunk overlap so boundary-spanning headers are
// still seen whole.
func (db *Database) MaxHeaderLen() int {
	return db.maxHeaderLen
}

// MaxFooterLen feeds into the same overlap sizing, a footer crossing a
// chunk boundary must fit the carry as well.
func (db *Database) MaxFooterLen() int {
	return db.maxFooterLen
}

// candidates returns the signatures whose header could start with b.
func (db *Database) candidates(b byte) []*Signature {
	if sigs, ok := db.dispatch[b]; ok {
		return sigs
	}
	return db.anyLead
}
