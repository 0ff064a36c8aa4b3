package protocol

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rudransh-shrivastava/peer-chat/internal/geo"
)

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrMalformed   = errors.New("malformed message")
	ErrTooLarge    = errors.New("message too large")
)

const (
	fieldType  = "type"
	fieldValue = "value"
	fieldLat   = "lat"
	fieldLon   = "lon"
)

// Codec converts envelopes to and from a protobuf Struct of the form
// {type: <tag>, value: <payload>}.
type Codec struct{}

func NewCodec() *Codec {
	return &Codec{}
}

func (c *Codec) EncodeToBytes(env Envelope) ([]byte, error) {
	fields := make(map[string]*structpb.Value, 2)

	switch e := env.(type) {
	case Name:
		fields[fieldValue] = textValue(e.DisplayName)
	case Text:
		fields[fieldValue] = textValue(e.Body)
	case Buzz:
	case Image:
		if len(e.Data) > MaxImageSize {
			return nil, fmt.Errorf("%w: image of %d bytes exceeds %d", ErrTooLarge, len(e.Data), MaxImageSize)
		}
		fields[fieldValue] = structpb.NewStringValue(base64.StdEncoding.EncodeToString(e.Data))
	case Location:
		fields[fieldValue] = structpb.NewStructValue(&structpb.Struct{
			Fields: map[string]*structpb.Value{
				fieldLat: structpb.NewNumberValue(e.Coordinates.Lat),
				fieldLon: structpb.NewNumberValue(e.Coordinates.Lon),
			},
		})
	case End:
		fields[fieldValue] = textValue(e.Notice)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, env)
	}
	fields[fieldType] = structpb.NewStringValue(env.Type().String())

	data, err := proto.Marshal(&structpb.Struct{Fields: fields})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return data, nil
}

// textValue replaces invalid UTF-8, which protobuf strings cannot carry.
func textValue(s string) *structpb.Value {
	return structpb.NewStringValue(strings.ToValidUTF8(s, "\uFFFD"))
}

func (c *Codec) DecodeFromBytes(data []byte) (Envelope, error) {
	var msg structpb.Struct
	if err := proto.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	fields := msg.GetFields()
	tag := fields[fieldType].GetStringValue()
	msgType, ok := parseMessageType(tag)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, tag)
	}
	value := fields[fieldValue]

	switch msgType {
	case MsgName:
		s, err := stringValue(msgType, value)
		if err != nil {
			return nil, err
		}
		return Name{DisplayName: s}, nil
	case MsgText:
		s, err := stringValue(msgType, value)
		if err != nil {
			return nil, err
		}
		return Text{Body: s}, nil
	case MsgBuzz:
		return Buzz{}, nil
	case MsgImage:
		s, err := stringValue(msgType, value)
		if err != nil {
			return nil, err
		}
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: img payload: %v", ErrMalformed, err)
		}
		return Image{Data: raw}, nil
	case MsgLocation:
		coords, err := coordinatesValue(value)
		if err != nil {
			return nil, err
		}
		return Location{Coordinates: coords}, nil
	case MsgEnd:
		s, err := stringValue(msgType, value)
		if err != nil {
			return nil, err
		}
		return End{Notice: s}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownType, tag)
}

func stringValue(t MessageType, v *structpb.Value) (string, error) {
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("%w: %s payload is not a string", ErrMalformed, t)
	}
	return s.StringValue, nil
}

func coordinatesValue(v *structpb.Value) (geo.Coordinates, error) {
	st := v.GetStructValue()
	if st == nil {
		return geo.Coordinates{}, fmt.Errorf("%w: location payload is not an object", ErrMalformed)
	}

	lat, ok := st.GetFields()[fieldLat].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return geo.Coordinates{}, fmt.Errorf("%w: location without lat", ErrMalformed)
	}
	lon, ok := st.GetFields()[fieldLon].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return geo.Coordinates{}, fmt.Errorf("%w: location without lon", ErrMalformed)
	}

	return geo.Coordinates{Lat: lat.NumberValue, Lon: lon.NumberValue}, nil
}
