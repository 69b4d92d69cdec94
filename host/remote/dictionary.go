package remote

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"gopins/protocol"
)

// Dictionary is the parsed data dictionary of a device
type Dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`

	byName map[string]protocol.MessageFormat
	byID   map[uint16]protocol.MessageFormat
}

// bootstrapDictionary knows only the two messages with fixed IDs, enough
// to download the real dictionary
func bootstrapDictionary() *Dictionary {
	d := &Dictionary{
		Commands:  map[string]int{protocol.Messages[1].Format(): 1},
		Responses: map[string]int{protocol.Messages[0].Format(): 0},
	}
	if err := d.index(); err != nil {
		panic(err)
	}
	return d
}

// ParseDictionary parses dictionary JSON, zlib compressed or plain, and
// indexes its message formats
func ParseDictionary(data []byte) (*Dictionary, error) {
	if len(data) >= 2 && data[0] == 0x78 {
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to open compressed dictionary: %w", err)
		}
		plain, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to decompress dictionary: %w", err)
		}
		data = plain
	}

	d := &Dictionary{}
	if err := json.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dictionary: %w", err)
	}
	if err := d.index(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dictionary) index() error {
	d.byName = make(map[string]protocol.MessageFormat, len(d.Commands)+len(d.Responses))
	d.byID = make(map[uint16]protocol.MessageFormat, len(d.Commands)+len(d.Responses))
	for _, m := range []map[string]int{d.Commands, d.Responses} {
		for format, id := range m {
			mf, err := protocol.ParseMessageFormat(format)
			if err != nil {
				return fmt.Errorf("dictionary entry %q: %w", format, err)
			}
			mf.ID = uint16(id)
			d.byName[mf.Name] = mf
			d.byID[mf.ID] = mf
		}
	}
	return nil
}

// Lookup returns the format of a message by name
func (d *Dictionary) Lookup(name string) (protocol.MessageFormat, bool) {
	mf, ok := d.byName[name]
	return mf, ok
}

// LookupID returns the format of a message by ID
func (d *Dictionary) LookupID(id uint16) (protocol.MessageFormat, bool) {
	mf, ok := d.byID[id]
	return mf, ok
}

// Enumeration returns the value of name in enumeration enum
func (d *Dictionary) Enumeration(enum, name string) (int, bool) {
	v, ok := d.Enumerations[enum][name]
	return v, ok
}

// Print writes a summary of the dictionary
func (d *Dictionary) Print(w io.Writer) {
	fmt.Fprintf(w, "Version: %s\n", d.Version)
	fmt.Fprintf(w, "Build: %s\n", d.BuildVersions)

	fmt.Fprintln(w, "Config:")
	for _, k := range sortedNames(d.Config) {
		fmt.Fprintf(w, "  %s = %s\n", k, d.Config[k])
	}

	printIDs := func(title string, m map[string]int) {
		fmt.Fprintf(w, "%s (%d):\n", title, len(m))
		formats := make([]string, 0, len(m))
		for f := range m {
			formats = append(formats, f)
		}
		sort.Slice(formats, func(i, j int) bool { return m[formats[i]] < m[formats[j]] })
		for _, f := range formats {
			fmt.Fprintf(w, "  [%d] %s\n", m[f], f)
		}
	}
	printIDs("Commands", d.Commands)
	printIDs("Responses", d.Responses)

	for name, values := range d.Enumerations {
		fmt.Fprintf(w, "Enumeration %s: %d values\n", name, len(values))
	}
}

func sortedNames(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
