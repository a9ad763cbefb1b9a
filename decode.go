package spacestatus

// Category groups events by the part of the document they touch.
type Category int

const (
	CategoryDoor Category = iota + 1
	CategoryLever
)

func (c Category) String() string {
	switch c {
	case CategoryDoor:
		return "door"
	case CategoryLever:
		return "lever"
	default:
		return "unknown"
	}
}

// EventKind is the decoded meaning of a payload.
type EventKind int

const (
	// Noop is a payload on a known topic that matches none of the known
	// values. It changes no field but still counts as activity for its
	// category.
	Noop EventKind = iota
	DoorOpened
	DoorClosed
	DoorLocked
	DoorUnlocked
	LeverOpened
	LeverClosed
)

var eventKindNames = map[EventKind]string{
	Noop:         "noop",
	DoorOpened:   "door_opened",
	DoorClosed:   "door_closed",
	DoorLocked:   "door_locked",
	DoorUnlocked: "door_unlocked",
	LeverOpened:  "lever_opened",
	LeverClosed:  "lever_closed",
}

func (k EventKind) String() string {
	if s, ok := eventKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Event is a decoded status event.
type Event struct {
	Category Category
	Kind     EventKind
}

// Default sensor topics.
const (
	DefaultDoorTopic  = "Netz39/Things/Door/Events"
	DefaultLeverTopic = "Netz39/Things/StatusSwitch/Lever/State"
)

var (
	doorPayloads = map[string]EventKind{
		"door open":     DoorOpened,
		"door closed":   DoorClosed,
		"door locked":   DoorLocked,
		"door unlocked": DoorUnlocked,
	}
	leverPayloads = map[string]EventKind{
		"open":   LeverOpened,
		"closed": LeverClosed,
	}
)

// Decoder maps bus messages to events.
type Decoder struct {
	DoorTopic  string
	LeverTopic string
}

// Decode returns the event carried by a message. Payloads are matched
// byte-for-byte. ok is false for topics the decoder does not know, in which
// case the message must have no effect at all.
func (d Decoder) Decode(topic string, payload []byte) (ev Event, ok bool) {
	switch topic {
	case d.DoorTopic:
		return Event{Category: CategoryDoor, Kind: doorPayloads[string(payload)]}, true
	case d.LeverTopic:
		return Event{Category: CategoryLever, Kind: leverPayloads[string(payload)]}, true
	default:
		return Event{}, false
	}
}

// Topics returns the topics the decoder recognizes, for subscription.
func (d Decoder) Topics() []string {
	return []string{d.DoorTopic, d.LeverTopic}
}
