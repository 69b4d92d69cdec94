package protocol

import (
	"fmt"
	"strings"
)

// ParamType is the wire type of a message parameter
type ParamType uint8

const (
	ParamUint32 ParamType = iota // %u
	ParamInt32                   // %i
	ParamUint16                  // %hu
	ParamInt16                   // %hi
	ParamByte                    // %c
	ParamBuffer                  // %*s
	ParamString                  // %s
)

var paramTypes = map[string]ParamType{
	"%u":  ParamUint32,
	"%i":  ParamInt32,
	"%hu": ParamUint16,
	"%hi": ParamInt16,
	"%c":  ParamByte,
	"%*s": ParamBuffer,
	"%s":  ParamString,
}

// Param is one named message parameter
type Param struct {
	Name string
	Type ParamType
}

// IsBuffer reports whether the parameter is length-prefixed bytes
func (p Param) IsBuffer() bool {
	return p.Type == ParamBuffer || p.Type == ParamString
}

// MessageFormat describes one message as listed in the dictionary,
// e.g. "digital_write pin=%c value=%c"
type MessageFormat struct {
	ID     uint16
	Name   string
	Params []Param
}

// ParseMessageFormat parses a dictionary format string
func ParseMessageFormat(format string) (MessageFormat, error) {
	fields := strings.Fields(format)
	if len(fields) == 0 {
		return MessageFormat{}, fmt.Errorf("%w: empty", ErrBadFormat)
	}
	mf := MessageFormat{Name: fields[0]}
	for _, f := range fields[1:] {
		name, typ, ok := strings.Cut(f, "=")
		if !ok || name == "" {
			return MessageFormat{}, fmt.Errorf("%w: %q", ErrBadFormat, f)
		}
		pt, ok := paramTypes[typ]
		if !ok {
			return MessageFormat{}, fmt.Errorf("%w: unknown type %q", ErrBadFormat, typ)
		}
		mf.Params = append(mf.Params, Param{Name: name, Type: pt})
	}
	return mf, nil
}

// String renders the format back to its dictionary form
func (f MessageFormat) String() string {
	var b strings.Builder
	b.WriteString(f.Name)
	for _, p := range f.Params {
		b.WriteByte(' ')
		b.WriteString(p.Name)
		b.WriteByte('=')
		for verb, t := range paramTypes {
			if t == p.Type {
				b.WriteString(verb)
				break
			}
		}
	}
	return b.String()
}

// Encode writes the message ID followed by args, one per integer parameter.
// Formats with buffer parameters must be encoded by hand.
func (f MessageFormat) Encode(output OutputBuffer, args ...int32) error {
	if len(args) != len(f.Params) {
		return fmt.Errorf("%w: %s takes %d, got %d", ErrArgCount, f.Name, len(f.Params), len(args))
	}
	for _, p := range f.Params {
		if p.IsBuffer() {
			return fmt.Errorf("%w: %s has buffer parameter %s", ErrBadFormat, f.Name, p.Name)
		}
	}
	EncodeVLQUint(output, uint32(f.ID))
	for _, a := range args {
		EncodeVLQInt(output, a)
	}
	return nil
}

// Args holds decoded message arguments
type Args struct {
	Values  map[string]int32
	Buffers map[string][]byte
}

// Uint returns an integer parameter as unsigned
func (a Args) Uint(name string) uint32 {
	return uint32(a.Values[name])
}

// Decode reads the parameters of f from data, which is positioned just
// after the message ID
func (f MessageFormat) Decode(data *[]byte) (Args, error) {
	args := Args{Values: make(map[string]int32, len(f.Params))}
	for _, p := range f.Params {
		if p.IsBuffer() {
			b, err := DecodeVLQBytes(data)
			if err != nil {
				return args, fmt.Errorf("%s.%s: %w", f.Name, p.Name, err)
			}
			if args.Buffers == nil {
				args.Buffers = make(map[string][]byte)
			}
			args.Buffers[p.Name] = append([]byte(nil), b...)
			continue
		}
		v, err := DecodeVLQInt(data)
		if err != nil {
			return args, fmt.Errorf("%s.%s: %w", f.Name, p.Name, err)
		}
		switch p.Type {
		case ParamByte:
			v = int32(uint8(v))
		case ParamUint16:
			v = int32(uint16(v))
		case ParamInt16:
			v = int32(int16(v))
		}
		args.Values[p.Name] = v
	}
	return args, nil
}
