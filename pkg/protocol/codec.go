package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type envelope struct {
	Type EventType `json:"type"`
}

// Decode parses one server frame into its typed event. Bulk frames are
// decoded recursively into BulkEvent.Events. Frames with an unknown tag
// decode to *UnknownEvent.
func Decode(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("failed to decode frame: missing type")
	}

	ev := newEvent(env.Type)
	if ev == nil {
		return &UnknownEvent{Tag: env.Type, Raw: append(json.RawMessage(nil), raw...)}, nil
	}
	if err := json.Unmarshal(raw, ev); err != nil {
		return nil, fmt.Errorf("failed to decode %s frame: %w", env.Type, err)
	}

	if bulk, ok := ev.(*BulkEvent); ok {
		bulk.Events = make([]Event, 0, len(bulk.V))
		for i, item := range bulk.V {
			inner, err := Decode(item)
			if err != nil {
				return nil, fmt.Errorf("bulk item %d: %w", i, err)
			}
			bulk.Events = append(bulk.Events, inner)
		}
	}
	return ev, nil
}

// Encode renders ev as a tagged frame.
func Encode(ev Event) ([]byte, error) {
	if u, ok := ev.(*UnknownEvent); ok {
		return u.Raw, nil
	}
	if bulk, ok := ev.(*BulkEvent); ok && len(bulk.Events) > 0 {
		items := make([]json.RawMessage, 0, len(bulk.Events))
		for _, inner := range bulk.Events {
			b, err := Encode(inner)
			if err != nil {
				return nil, err
			}
			items = append(items, b)
		}
		ev = &BulkEvent{V: items}
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s frame: %w", ev.Type(), err)
	}
	return withType(ev.Type(), body), nil
}

func withType(t EventType, body []byte) []byte {
	tag, _ := json.Marshal(string(t))
	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	buf.Write(tag)
	body = bytes.TrimSpace(body)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1 : len(body)-1])
	}
	buf.WriteByte('}')
	return buf.Bytes()
}
