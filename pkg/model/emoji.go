package model

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// EmojiParent is either a server ("Server" with ID) or "Detached".
type EmojiParent struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

// EmojiData is the wire shape of a custom emoji.
type EmojiData struct {
	ID        string      `json:"_id"`
	Parent    EmojiParent `json:"parent"`
	CreatorID string      `json:"creator_id"`
	Name      string      `json:"name"`
	Animated  bool        `json:"animated,omitempty"`
	NSFW      bool        `json:"nsfw,omitempty"`
}

type Emoji struct {
	ID        string
	Parent    EmojiParent
	CreatorID string
	Name      string
	Animated  bool
	NSFW      bool
}

func NewEmoji(data EmojiData) *Emoji {
	return &Emoji{
		ID:        data.ID,
		Parent:    data.Parent,
		CreatorID: data.CreatorID,
		Name:      data.Name,
		Animated:  data.Animated,
		NSFW:      data.NSFW,
	}
}

// ServerID returns the owning server, or "" for detached emoji.
func (e *Emoji) ServerID() string {
	if e.Parent.Type == "Server" {
		return e.Parent.ID
	}
	return ""
}

func (e *Emoji) String() string {
	return ":" + e.ID + ":"
}

func (e *Emoji) CreatedAt() (time.Time, error) {
	id, err := ulid.ParseStrict(e.ID)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse emoji id %q: %w", e.ID, err)
	}
	return ulid.Time(id.Time()), nil
}
