// media_type.go defines the MediaType enum and its methods.

package types

import "fmt"

type MediaType int

const (
	MediaTypeUnknown    = MediaType(-0x1)
	MediaTypeVideo      = MediaType(0x0)
	MediaTypeAudio      = MediaType(0x1)
	MediaTypeData       = MediaType(0x2)
	MediaTypeSubtitle   = MediaType(0x3)
	MediaTypeAttachment = MediaType(0x4)
)

func (t MediaType) String() string {
	switch t {
	case MediaTypeAttachment:
		return "attachment"
	case MediaTypeAudio:
		return "audio"
	case MediaTypeData:
		return "data"
	case MediaTypeSubtitle:
		return "subtitle"
	case MediaTypeVideo:
		return "video"
	case MediaTypeUnknown:
		return "unknown"
	default:
		return "MediaType(" + fmt.Sprintf("%d", int(t)) + ")"
	}
}

func MediaTypeFromString(s string) (MediaType, error) {
	switch s {
	case "video":
		return MediaTypeVideo, nil
	case "audio":
		return MediaTypeAudio, nil
	case "data":
		return MediaTypeData, nil
	case "subtitle":
		return MediaTypeSubtitle, nil
	case "attachment":
		return MediaTypeAttachment, nil
	case "unknown":
		return MediaTypeUnknown, nil
	}
	return MediaTypeUnknown, fmt.Errorf("unknown media type '%s'", s)
}

func (t MediaType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *MediaType) UnmarshalText(b []byte) error {
	v, err := MediaTypeFromString(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
