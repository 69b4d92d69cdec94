package firmware

import (
	"sort"
	"sync"

	"gopins/core"
	"gopins/tinycompress"
)

// Dictionary is the JSON data dictionary a host downloads with identify.
// It lists every message format with its ID, plus constants and
// enumerations (pin names) describing the device. It is served as a zlib
// stream.
type Dictionary struct {
	mu            sync.RWMutex
	constants     map[string]string
	enumerations  map[string][]string
	registry      *Registry
	version       string
	buildVersions string
	cached        []byte // compressed
	cachedJSON    []byte
}

// NewDictionary creates a dictionary over reg
func NewDictionary(reg *Registry) *Dictionary {
	return &Dictionary{
		constants:     make(map[string]string),
		enumerations:  make(map[string][]string),
		registry:      reg,
		version:       "gopins-0.1.0",
		buildVersions: "go",
	}
}

// AddConstant adds a constant. Values are rendered as strings.
func (d *Dictionary) AddConstant(name string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.constants[name] = valueToString(value)
	d.cached, d.cachedJSON = nil, nil
}

// AddEnumeration adds an enumeration; value i is encoded as i on the wire.
// Empty names are skipped.
func (d *Dictionary) AddEnumeration(name string, values []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enumerations[name] = append([]string(nil), values...)
	d.cached, d.cachedJSON = nil, nil
}

// SetVersion sets the firmware version string
func (d *Dictionary) SetVersion(version string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.version = version
	d.cached, d.cachedJSON = nil, nil
}

// SetBuildVersions sets the build versions string
func (d *Dictionary) SetBuildVersions(versions string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buildVersions = versions
	d.cached, d.cachedJSON = nil, nil
}

// JSON returns the uncompressed dictionary
func (d *Dictionary) JSON() []byte {
	d.build()
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cachedJSON
}

// Generate returns the dictionary as served, building it on first use
// after a change
func (d *Dictionary) Generate() []byte {
	d.build()
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

func (d *Dictionary) build() {
	// Fetch registry data before taking the dictionary lock
	commands, responses := d.registry.CommandsAndResponses()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cached == nil {
		d.cachedJSON = d.buildJSONLocked(commands, responses)
		d.cached = tinycompress.Compress(d.cachedJSON)
	}
}

// Chunk returns up to count bytes of the dictionary starting at offset.
// An offset at or past the end yields an empty chunk, which ends the
// host's download.
func (d *Dictionary) Chunk(offset uint32, count uint8) []byte {
	data := d.Generate()
	if offset >= uint32(len(data)) {
		return []byte{}
	}
	end := offset + uint32(count)
	if end > uint32(len(data)) {
		end = uint32(len(data))
	}
	chunk := make([]byte, end-offset)
	copy(chunk, data[offset:end])
	return chunk
}

func (d *Dictionary) buildJSONLocked(commands, responses map[string]int) []byte {
	result := make([]byte, 0, 1024)

	result = append(result, `{"version":`...)
	result = appendJSONString(result, d.version)
	result = append(result, `,"build_versions":`...)
	result = appendJSONString(result, d.buildVersions)

	result = append(result, `,"config":{`...)
	for i, name := range sortedKeys(d.constants) {
		if i > 0 {
			result = append(result, ',')
		}
		result = appendJSONString(result, name)
		result = append(result, ':')
		result = appendJSONString(result, d.constants[name])
	}

	result = append(result, `},"commands":`...)
	result = appendIDMap(result, commands)
	result = append(result, `,"responses":`...)
	result = appendIDMap(result, responses)

	if len(d.enumerations) > 0 {
		result = append(result, `,"enumerations":{`...)
		names := make([]string, 0, len(d.enumerations))
		for name := range d.enumerations {
			names = append(names, name)
		}
		sort.Strings(names)
		for i, name := range names {
			if i > 0 {
				result = append(result, ',')
			}
			result = appendJSONString(result, name)
			result = append(result, `:{`...)
			first := true
			for idx, value := range d.enumerations[name] {
				if value == "" {
					continue
				}
				if !first {
					result = append(result, ',')
				}
				result = appendJSONString(result, value)
				result = append(result, ':')
				result = append(result, core.Itoa(idx)...)
				first = false
			}
			result = append(result, '}')
		}
		result = append(result, '}')
	}

	return append(result, '}')
}

// appendIDMap writes a format->id object ordered by ID
func appendIDMap(result []byte, m map[string]int) []byte {
	formats := make([]string, 0, len(m))
	for f := range m {
		formats = append(formats, f)
	}
	sort.Slice(formats, func(i, j int) bool { return m[formats[i]] < m[formats[j]] })

	result = append(result, '{')
	for i, f := range formats {
		if i > 0 {
			result = append(result, ',')
		}
		result = appendJSONString(result, f)
		result = append(result, ':')
		result = append(result, core.Itoa(m[f])...)
	}
	return append(result, '}')
}

func appendJSONString(dst []byte, s string) []byte {
	dst = append(dst, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			dst = append(dst, '\\', c)
		case c < 0x20:
			dst = append(dst, `\u00`...)
			dst = append(dst, "0123456789abcdef"[c>>4], "0123456789abcdef"[c&0xF])
		default:
			dst = append(dst, c)
		}
	}
	return append(dst, '"')
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func valueToString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return core.Itoa(x)
	case int32:
		return core.Itoa(int(x))
	case uint32:
		return core.Utoa(x)
	case uint8:
		return core.Utoa(uint32(x))
	case bool:
		if x {
			return "1"
		}
		return "0"
	default:
		return ""
	}
}
