// Package cwfeed carries control words from an external key source to the
// descrambler registry over gRPC. Messages are protobuf encoded by hand with
// protowire and travel inside BytesValue wrappers.
package cwfeed

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/observe-l/tvcsa/descrambler"
)

var ErrRecord = errors.New("cwfeed: malformed record")

// Record carries the control words of one descrambler of one service.
// An empty Even or Odd leaves that parity untouched.
type Record struct {
	SID    uint16
	Client string
	Kind   descrambler.Kind
	Even   []byte
	Odd    []byte
}

// StateRecord moves a descrambler to a key state.
type StateRecord struct {
	SID    uint16
	Client string
	State  descrambler.KeyState
}

// ServiceStatus is a snapshot of one running service.
type ServiceStatus struct {
	SID          uint16
	Pending      int
	Descramblers []descrambler.DescramblerInfo
}

const (
	fieldSID    protowire.Number = 1
	fieldClient protowire.Number = 2
	fieldKind   protowire.Number = 3
	fieldEven   protowire.Number = 4
	fieldOdd    protowire.Number = 5
	fieldState  protowire.Number = 6

	fieldPending     protowire.Number = 2
	fieldDescrambler protowire.Number = 3

	fieldInfoName  protowire.Number = 1
	fieldInfoState protowire.Number = 2
	fieldInfoKind  protowire.Number = 3

	fieldService protowire.Number = 1
)

func appendVarint(b []byte, n protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, n, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytes(b []byte, n protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, n, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func (r *Record) Marshal() []byte {
	var b []byte
	b = appendVarint(b, fieldSID, uint64(r.SID))
	b = appendBytes(b, fieldClient, []byte(r.Client))
	b = appendVarint(b, fieldKind, uint64(r.Kind))
	if len(r.Even) > 0 {
		b = appendBytes(b, fieldEven, r.Even)
	}
	if len(r.Odd) > 0 {
		b = appendBytes(b, fieldOdd, r.Odd)
	}
	return b
}

func (r *Record) Unmarshal(b []byte) error {
	*r = Record{}
	return walk(b, func(n protowire.Number, v uint64, raw []byte) error {
		switch n {
		case fieldSID:
			if v > 0xffff {
				return fmt.Errorf("%w: sid %d", ErrRecord, v)
			}
			r.SID = uint16(v)
		case fieldClient:
			r.Client = string(raw)
		case fieldKind:
			r.Kind = descrambler.Kind(v)
		case fieldEven:
			r.Even = append([]byte(nil), raw...)
		case fieldOdd:
			r.Odd = append([]byte(nil), raw...)
		}
		return nil
	})
}

func (r *StateRecord) Marshal() []byte {
	var b []byte
	b = appendVarint(b, fieldSID, uint64(r.SID))
	b = appendBytes(b, fieldClient, []byte(r.Client))
	return appendVarint(b, fieldState, uint64(r.State))
}

func (r *StateRecord) Unmarshal(b []byte) error {
	*r = StateRecord{}
	return walk(b, func(n protowire.Number, v uint64, raw []byte) error {
		switch n {
		case fieldSID:
			if v > 0xffff {
				return fmt.Errorf("%w: sid %d", ErrRecord, v)
			}
			r.SID = uint16(v)
		case fieldClient:
			r.Client = string(raw)
		case fieldState:
			r.State = descrambler.KeyState(v)
		}
		return nil
	})
}

// MarshalStatus encodes a status list as a repeated message field.
func MarshalStatus(list []ServiceStatus) []byte {
	var b []byte
	for _, s := range list {
		var sb []byte
		sb = appendVarint(sb, fieldSID, uint64(s.SID))
		sb = appendVarint(sb, fieldPending, uint64(s.Pending))
		for _, d := range s.Descramblers {
			var db []byte
			db = appendBytes(db, fieldInfoName, []byte(d.Name))
			db = appendVarint(db, fieldInfoState, uint64(d.State))
			db = appendVarint(db, fieldInfoKind, uint64(d.Kind))
			sb = appendBytes(sb, fieldDescrambler, db)
		}
		b = appendBytes(b, fieldService, sb)
	}
	return b
}

func UnmarshalStatus(b []byte) ([]ServiceStatus, error) {
	var list []ServiceStatus
	err := walk(b, func(n protowire.Number, _ uint64, raw []byte) error {
		if n != fieldService {
			return nil
		}
		var s ServiceStatus
		err := walk(raw, func(n protowire.Number, v uint64, raw []byte) error {
			switch n {
			case fieldSID:
				s.SID = uint16(v)
			case fieldPending:
				s.Pending = int(v)
			case fieldDescrambler:
				var d descrambler.DescramblerInfo
				if err := walk(raw, func(n protowire.Number, v uint64, raw []byte) error {
					switch n {
					case fieldInfoName:
						d.Name = string(raw)
					case fieldInfoState:
						d.State = descrambler.KeyState(v)
					case fieldInfoKind:
						d.Kind = descrambler.Kind(v)
					}
					return nil
				}); err != nil {
					return err
				}
				s.Descramblers = append(s.Descramblers, d)
			}
			return nil
		})
		if err != nil {
			return err
		}
		list = append(list, s)
		return nil
	})
	return list, err
}

// walk visits the varint and length-delimited fields of b. Other wire
// types are skipped.
func walk(b []byte, fn func(n protowire.Number, v uint64, raw []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrRecord, protowire.ParseError(n))
		}
		b = b[n:]
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrRecord, protowire.ParseError(n))
			}
			b = b[n:]
			if err := fn(num, v, nil); err != nil {
				return err
			}
		case protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrRecord, protowire.ParseError(n))
			}
			b = b[n:]
			if err := fn(num, 0, raw); err != nil {
				return err
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrRecord, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return nil
}
