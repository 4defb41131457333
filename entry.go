package availcache

import (
	"fmt"
	"time"
)

// SchemaVersion is the current layout of a persisted Entry. Entries written
// under any other version are reported stale and re-resolved.
const SchemaVersion = 2

const day = 24 * time.Hour

// Platform is one resolvable attribute of an entity.
type Platform uint8

const (
	Nintendo Platform = iota + 1
	PlayStation
	Xbox
)

// Platforms lists every known Platform in display order.
var Platforms = []Platform{Nintendo, PlayStation, Xbox}

func (p Platform) String() string {
	switch p {
	case Nintendo:
		return "nintendo"
	case PlayStation:
		return "playstation"
	case Xbox:
		return "xbox"
	default:
		return fmt.Sprintf("platform(%d)", uint8(p))
	}
}

func (p Platform) Valid() bool { return p >= Nintendo && p <= Xbox }

// ParsePlatform accepts the text form of a Platform.
func ParsePlatform(s string) (Platform, error) {
	switch s {
	case "nintendo", "ns", "switch":
		return Nintendo, nil
	case "playstation", "ps":
		return PlayStation, nil
	case "xbox":
		return Xbox, nil
	}
	return 0, fmt.Errorf("availcache: unknown platform %q", s)
}

func (p Platform) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("availcache: invalid platform %d", uint8(p))
	}
	return []byte(p.String()), nil
}

func (p *Platform) UnmarshalText(b []byte) error {
	v, err := ParsePlatform(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Status is the availability of an entity on one Platform.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusAvailable
	StatusUnavailable
)

// StatusOf maps a provider's boolean answer to a Status.
func StatusOf(available bool) Status {
	if available {
		return StatusAvailable
	}
	return StatusUnavailable
}

func (s Status) String() string {
	switch s {
	case StatusAvailable:
		return "available"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

func ParseStatus(s string) (Status, error) {
	switch s {
	case "available", "true", "yes":
		return StatusAvailable, nil
	case "unavailable", "false", "no":
		return StatusUnavailable, nil
	case "unknown", "":
		return StatusUnknown, nil
	}
	return 0, fmt.Errorf("availcache: unknown status %q", s)
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Attribute is the resolved state of one Platform. URL is either a
// provider-authoritative page or a deterministic store search.
type Attribute struct {
	Status Status `json:"status" msgpack:"status" cbor:"1,keyasint"`
	URL    string `json:"url" msgpack:"url" cbor:"2,keyasint"`
}

// Source records which tier produced an entry.
// Provider tiers use the provider's Name.
type Source string

const (
	SourceOverride Source = "override"
	SourceFallback Source = "fallback"
)

// Entry is the persisted resolution state of one entity.
type Entry struct {
	EntityID      string                 `json:"entityId" msgpack:"id" cbor:"1,keyasint"`
	DisplayName   string                 `json:"displayName" msgpack:"name" cbor:"2,keyasint"`
	Attributes    map[Platform]Attribute `json:"attributes" msgpack:"attrs" cbor:"3,keyasint"`
	Source        Source                 `json:"source" msgpack:"src" cbor:"4,keyasint"`
	ExternalRefs  map[string]string      `json:"externalRefs,omitempty" msgpack:"refs,omitempty" cbor:"5,keyasint,omitempty"`
	ResolvedAt    time.Time              `json:"resolvedAt" msgpack:"at" cbor:"6,keyasint"`
	TTLDays       int                    `json:"ttlDays" msgpack:"ttl" cbor:"7,keyasint"`
	SchemaVersion int                    `json:"schemaVersion" msgpack:"v" cbor:"8,keyasint"`
}

// Expires reports the instant the entry stops being valid.
func (e *Entry) Expires() time.Time {
	return e.ResolvedAt.Add(time.Duration(e.TTLDays) * day)
}

// ValidAt reports whether the entry is inside its TTL and written under the
// current SchemaVersion.
func (e *Entry) ValidAt(now time.Time) bool {
	return validAt(e.ResolvedAt, e.TTLDays, e.SchemaVersion, now)
}

func validAt(resolvedAt time.Time, ttlDays, schema int, now time.Time) bool {
	if schema != SchemaVersion {
		return false
	}
	return now.Before(resolvedAt.Add(time.Duration(ttlDays) * day))
}

// Attribute returns the state for p. Platforms missing from the map read as
// StatusUnknown.
func (e *Entry) Attribute(p Platform) Attribute {
	if a, ok := e.Attributes[p]; ok {
		return a
	}
	return Attribute{Status: StatusUnknown}
}

func (e Entry) clone() Entry {
	out := e
	out.Attributes = make(map[Platform]Attribute, len(e.Attributes))
	for p, a := range e.Attributes {
		out.Attributes[p] = a
	}
	if e.ExternalRefs != nil {
		out.ExternalRefs = make(map[string]string, len(e.ExternalRefs))
		for k, v := range e.ExternalRefs {
			out.ExternalRefs[k] = v
		}
	}
	return out
}
