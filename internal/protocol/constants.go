package protocol

// MaxImageSize bounds the raw size of an image payload.
const MaxImageSize = 16 * 1024 * 1024

type MessageType uint8

const (
	MsgName MessageType = iota + 1
	MsgText
	MsgBuzz
	MsgImage
	MsgLocation
	MsgEnd
)

// String returns the wire tag of the type.
func (t MessageType) String() string {
	switch t {
	case MsgName:
		return "name"
	case MsgText:
		return "msg"
	case MsgBuzz:
		return "buzz"
	case MsgImage:
		return "img"
	case MsgLocation:
		return "location"
	case MsgEnd:
		return "end"
	default:
		return "unknown"
	}
}

func parseMessageType(tag string) (MessageType, bool) {
	switch tag {
	case "name":
		return MsgName, true
	case "msg":
		return MsgText, true
	case "buzz":
		return MsgBuzz, true
	case "img":
		return MsgImage, true
	case "location":
		return MsgLocation, true
	case "end":
		return MsgEnd, true
	default:
		return 0, false
	}
}
