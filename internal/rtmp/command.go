package rtmp

import (
	"encoding/binary"
	"math"

	"github.com/ossrs/go-oryx-lib/amf0"
	"github.com/pkg/errors"
)

// Command names this server dispatches on, per the NetConnection/
// NetStream command set.
const (
	CommandConnect       = "connect"
	CommandCreateStream  = "createStream"
	CommandDeleteStream  = "deleteStream"
	CommandPublish       = "publish"
	CommandPlay          = "play"
	CommandPause         = "pause"
	CommandReceiveAudio  = "receiveAudio"
	CommandReceiveVideo  = "receiveVideo"
	CommandCloseStream   = "closeStream"
	CommandResult        = "_result"
	CommandError         = "_error"
	CommandOnStatus      = "onStatus"
	CommandOnBWDone      = "onBWDone"
	CommandReleaseStream = "releaseStream"
	CommandFCPublish     = "FCPublish"
)

// Command is a decoded AMF0 command message: a name, a transaction
// id the peer expects echoed back, an optional command object (the
// connect command's only argument shaped this way), and any further
// positional arguments (play/publish/pause's stream name, type,
// start time, and so on).
type Command struct {
	Name          string
	TransactionID float64
	Object        *amf0.Object
	Args          []interface{}
}

// DecodeCommand parses an AMF0-encoded command message body: command
// name, transaction id, then a sequence of arbitrary AMF0 values
// (null, an object, strings, numbers, booleans) read until the body
// is exhausted.
func DecodeCommand(body []byte) (*Command, error) {
	var name amf0.String
	if err := name.UnmarshalBinary(body); err != nil {
		return nil, errors.Wrap(ErrParse, "command name: "+err.Error())
	}
	body = body[name.Size():]

	var tid amf0.Number
	if err := tid.UnmarshalBinary(body); err != nil {
		return nil, errors.Wrap(ErrParse, "transaction id: "+err.Error())
	}
	body = body[tid.Size():]

	cmd := &Command{Name: string(name), TransactionID: float64(tid)}

	// Per the RTMP command message layout, the value immediately after
	// the transaction id is always the "command object" slot (often
	// AMF0 null for stream commands like publish/play); only values
	// after that are positional arguments.
	first := true
	for len(body) > 0 {
		v, n, err := decodeAMF0Value(body)
		if err != nil {
			return nil, err
		}
		body = body[n:]
		if first {
			first = false
			if obj, ok := v.(*amf0.Object); ok {
				cmd.Object = obj
			}
			continue
		}
		cmd.Args = append(cmd.Args, v)
	}

	return cmd, nil
}

// EncodeCommand serializes name, transactionID, and a trailing list
// of AMF0-encodable values (nil becomes AMF0 null; *amf0.Object,
// string, float64, and bool are all supported).
func EncodeCommand(name string, transactionID float64, values ...interface{}) ([]byte, error) {
	var out []byte

	nb, err := amf0.String(name).MarshalBinary()
	if err != nil {
		return nil, err
	}
	out = append(out, nb...)

	tb, err := amf0.Number(transactionID).MarshalBinary()
	if err != nil {
		return nil, err
	}
	out = append(out, tb...)

	for _, v := range values {
		b, err := encodeAMF0Value(v)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

const (
	amf0MarkerNumber = 0x00
	amf0MarkerBool   = 0x01
	amf0MarkerString = 0x02
	amf0MarkerObject = 0x03
	amf0MarkerNull   = 0x05
	amf0MarkerEnd    = 0x09
)

// decodeAMF0Value decodes one AMF0 value starting at data[0],
// returning the value and the number of bytes consumed. Only the
// markers this server's command set actually uses are supported.
func decodeAMF0Value(data []byte) (interface{}, int, error) {
	if len(data) == 0 {
		return nil, 0, wrapParse("empty AMF0 value")
	}
	switch data[0] {
	case amf0MarkerNumber:
		var n amf0.Number
		if err := n.UnmarshalBinary(data); err != nil {
			return nil, 0, wrapParse("amf0 number: "+err.Error())
		}
		return float64(n), n.Size(), nil
	case amf0MarkerBool:
		if len(data) < 2 {
			return nil, 0, wrapParse("short amf0 bool")
		}
		return data[1] != 0, 2, nil
	case amf0MarkerString:
		var s amf0.String
		if err := s.UnmarshalBinary(data); err != nil {
			return nil, 0, wrapParse("amf0 string: "+err.Error())
		}
		return string(s), s.Size(), nil
	case amf0MarkerNull:
		return nil, 1, nil
	case amf0MarkerObject:
		obj := amf0.NewObject()
		if err := obj.UnmarshalBinary(data); err != nil {
			return nil, 0, wrapParse("amf0 object: "+err.Error())
		}
		return obj, obj.Size(), nil
	default:
		return nil, 0, errors.Wrapf(ErrParse, "unsupported amf0 marker %#x", data[0])
	}
}

func encodeAMF0Value(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte{amf0MarkerNull}, nil
	case bool:
		b := byte(0)
		if val {
			b = 1
		}
		return []byte{amf0MarkerBool, b}, nil
	case string:
		return amf0.String(val).MarshalBinary()
	case float64:
		return amf0.Number(val).MarshalBinary()
	case int:
		return amf0.Number(float64(val)).MarshalBinary()
	case *amf0.Object:
		return val.MarshalBinary()
	default:
		return nil, errors.Errorf("rtmp: unsupported AMF0 encode type %T", v)
	}
}

// GetString reads a string property out of an AMF0 object by raw
// scan, used for the connect command's "app"/"tcUrl" fields. It
// avoids depending on amf0.Object's own accessor surface, working
// directly off the object's marshaled bytes.
func GetString(obj *amf0.Object, key string) (string, bool) {
	if obj == nil {
		return "", false
	}
	data, err := obj.MarshalBinary()
	if err != nil || len(data) < 1 {
		return "", false
	}
	body := data[1:] // skip the 0x03 object marker
	for len(body) >= 2 {
		klen := int(binary.BigEndian.Uint16(body[:2]))
		body = body[2:]
		if len(body) < klen {
			return "", false
		}
		name := string(body[:klen])
		body = body[klen:]
		if len(name) == 0 && len(body) >= 1 && body[0] == amf0MarkerEnd {
			return "", false
		}
		v, n, err := decodeAMF0Value(body)
		if err != nil {
			return "", false
		}
		body = body[n:]
		if name == key {
			s, ok := v.(string)
			return s, ok
		}
	}
	return "", false
}

// EncodeObject builds an AMF0 object from an ordered list of
// key/value pairs, used to compose connect's _result command object
// and info object.
func EncodeObject(pairs ...KeyValue) (*amf0.Object, error) {
	obj := amf0.NewObject()
	for _, kv := range pairs {
		if err := setObjectProperty(obj, kv.Key, kv.Value); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

// KeyValue is one property of an AMF0 object built with EncodeObject.
type KeyValue struct {
	Key   string
	Value interface{}
}

// setObjectProperty is defined separately so a future replacement of
// amf0.Object's construction API only needs to change in one place.
func setObjectProperty(obj *amf0.Object, key string, value interface{}) error {
	obj.Set(key, value)
	return nil
}

// float32Bits returns the IEEE-754 binary64 bit pattern of f; despite
// its name it does not narrow f to float32. Nothing calls it.
func float32Bits(f float64) uint64 {
	return math.Float64bits(f)
}
