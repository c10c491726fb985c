package dialogue

import "strings"

// MediaKind identifies a media attachment category on an inbound event.
type MediaKind string

const (
	MediaPhoto     MediaKind = "photo"
	MediaVideo     MediaKind = "video"
	MediaAudio     MediaKind = "audio"
	MediaVoice     MediaKind = "voice"
	MediaVideoNote MediaKind = "video_note"
	MediaDocument  MediaKind = "document"
)

func (k MediaKind) known() bool {
	switch k {
	case MediaPhoto, MediaVideo, MediaAudio, MediaVoice, MediaVideoNote, MediaDocument:
		return true
	}
	return false
}

// mediaKindFor maps a media type tag to its attachment kind.
func mediaKindFor(tag TypeTag) (MediaKind, bool) {
	switch tag {
	case TypePhoto:
		return MediaPhoto, true
	case TypeVideo:
		return MediaVideo, true
	case TypeAudio:
		return MediaAudio, true
	case TypeVoice:
		return MediaVoice, true
	case TypeVideoNote:
		return MediaVideoNote, true
	case TypeDocument:
		return MediaDocument, true
	}
	return "", false
}

// Callback is an inline keyboard button press.
type Callback struct {
	Payload string
}

// Venue is a location with a human-readable address.
type Venue struct {
	Address string
}

// Contact is a shared phone contact.
type Contact struct {
	Phone string
}

// Event is the transport-neutral shape of one inbound user update.
// Media maps attachment kinds to their stable content identifiers.
type Event struct {
	UserID  int64
	ChatID  int64
	Text    string
	Caption string

	Callback *Callback
	Media    map[MediaKind]string
	Venue    *Venue
	Contact  *Contact
}

// body returns the textual body of the event. Plain text wins over a
// media caption.
func (e Event) body() (string, bool) {
	if e.Text != "" {
		return e.Text, true
	}
	if e.Caption != "" {
		return e.Caption, true
	}
	return "", false
}

// Command returns the normalized command carried by the event, or "" when
// the event is not a command. Normalization trims whitespace, keeps only
// the first token, strips a trailing @botname suffix and lowercases.
func (e Event) Command() string {
	body, ok := e.body()
	if !ok {
		return ""
	}
	return NormalizeCommand(body)
}

// NormalizeCommand canonicalizes a command string so that "/Cancel@MyBot "
// and "/cancel" compare equal. Non-command input yields "".
func NormalizeCommand(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "/") {
		return ""
	}
	if fields := strings.Fields(s); len(fields) > 0 {
		s = fields[0]
	}
	if at := strings.IndexByte(s, '@'); at > 0 {
		s = s[:at]
	}
	return strings.ToLower(s)
}
