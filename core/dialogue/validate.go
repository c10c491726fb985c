package dialogue

import (
	"strconv"
	"strings"
)

// Validate checks one event against one expected answer type. It returns
// the extracted answer value and whether the event satisfied the type.
// Unknown tags never match.
func Validate(tag TypeTag, ev Event) (string, bool) {
	switch tag {
	case TypeText, TypeString:
		return ev.body()
	case TypeCaption:
		if ev.Caption != "" {
			return ev.Caption, true
		}
		return ev.body()
	case TypeNumeric:
		body, ok := ev.body()
		if !ok {
			return "", false
		}
		s := strings.TrimSpace(body)
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return "", false
		}
		return s, true
	case TypeKeyboard:
		if ev.Callback == nil {
			return "", false
		}
		return ev.Callback.Payload, true
	case TypePhoto, TypeVideo, TypeAudio, TypeVoice, TypeVideoNote, TypeDocument:
		kind, _ := mediaKindFor(tag)
		id, ok := ev.Media[kind]
		if !ok || id == "" {
			return "", false
		}
		return id, true
	case TypeVenue:
		if ev.Venue == nil {
			return "", false
		}
		return ev.Venue.Address, true
	case TypeContact:
		if ev.Contact == nil {
			return "", false
		}
		return ev.Contact.Phone, true
	case TypeAuto:
		if tag, ok := inferType(ev); ok {
			return Validate(tag, ev)
		}
		if ev.Callback != nil {
			return ev.Callback.Payload, true
		}
		return "", false
	}
	return "", false
}

// ValidateAny tries the expected tags in declaration order and returns the
// first match. An empty tag list behaves as TypeAuto.
func ValidateAny(tags []TypeTag, ev Event) (string, bool) {
	if len(tags) == 0 {
		return Validate(TypeAuto, ev)
	}
	for _, tag := range tags {
		if value, ok := Validate(tag, ev); ok {
			return value, true
		}
	}
	return "", false
}

// inferType picks the dominant content type of a message-bearing event.
// Attachments take precedence over the textual body, so a photo with a
// caption infers as a photo.
func inferType(ev Event) (TypeTag, bool) {
	for _, tag := range []TypeTag{TypePhoto, TypeVideo, TypeAudio, TypeVoice, TypeVideoNote, TypeDocument} {
		kind, _ := mediaKindFor(tag)
		if ev.Media[kind] != "" {
			return tag, true
		}
	}
	if ev.Venue != nil {
		return TypeVenue, true
	}
	if ev.Contact != nil {
		return TypeContact, true
	}
	if _, ok := ev.body(); ok {
		return TypeText, true
	}
	return "", false
}
