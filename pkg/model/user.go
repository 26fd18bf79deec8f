package model

import "encoding/json"

// Relationship is how the current user relates to another user.
type Relationship string

const (
	RelationshipNone         Relationship = "None"
	RelationshipUser         Relationship = "User"
	RelationshipFriend       Relationship = "Friend"
	RelationshipOutgoing     Relationship = "Outgoing"
	RelationshipIncoming     Relationship = "Incoming"
	RelationshipBlocked      Relationship = "Blocked"
	RelationshipBlockedOther Relationship = "BlockedOther"
)

// Presence is a user's chosen availability.
type Presence string

const (
	PresenceOnline    Presence = "Online"
	PresenceIdle      Presence = "Idle"
	PresenceFocus     Presence = "Focus"
	PresenceBusy      Presence = "Busy"
	PresenceInvisible Presence = "Invisible"
)

type UserStatus struct {
	Text     *string   `json:"text,omitempty"`
	Presence *Presence `json:"presence,omitempty"`
}

func (s *UserStatus) clone() *UserStatus {
	if s == nil {
		return nil
	}
	return &UserStatus{Text: clonePtr(s.Text), Presence: clonePtr(s.Presence)}
}

type BotInformation struct {
	Owner string `json:"owner"`
}

// File is an uploaded attachment, kept opaque.
type File = json.RawMessage

// UserData is the wire shape of a user.
type UserData struct {
	ID            string          `json:"_id"`
	Username      string          `json:"username"`
	Discriminator string          `json:"discriminator"`
	DisplayName   *string         `json:"display_name,omitempty"`
	Avatar        File            `json:"avatar,omitempty"`
	Badges        uint32          `json:"badges,omitempty"`
	Status        *UserStatus     `json:"status,omitempty"`
	Flags         uint32          `json:"flags,omitempty"`
	Privileged    bool            `json:"privileged"`
	Bot           *BotInformation `json:"bot,omitempty"`
	Relationship  Relationship    `json:"relationship,omitempty"`
	Online        bool            `json:"online"`
}

// UserPatch is a partial user update.
type UserPatch struct {
	Username      Nullable[string]       `json:"username,omitzero"`
	Discriminator Nullable[string]       `json:"discriminator,omitzero"`
	DisplayName   Nullable[string]       `json:"display_name,omitzero"`
	Avatar        Nullable[File]         `json:"avatar,omitzero"`
	Badges        Nullable[uint32]       `json:"badges,omitzero"`
	Status        Nullable[UserStatus]   `json:"status,omitzero"`
	Flags         Nullable[uint32]       `json:"flags,omitzero"`
	Privileged    Nullable[bool]         `json:"privileged,omitzero"`
	Relationship  Nullable[Relationship] `json:"relationship,omitzero"`
	Online        Nullable[bool]         `json:"online,omitzero"`
}

// UserField names a user property that can be cleared.
type UserField string

const (
	UserFieldAvatar         UserField = "Avatar"
	UserFieldStatusText     UserField = "StatusText"
	UserFieldStatusPresence UserField = "StatusPresence"
	UserFieldProfileContent UserField = "ProfileContent"
	UserFieldDisplayName    UserField = "DisplayName"
)

type User struct {
	ID            string
	Username      string
	Discriminator string
	DisplayName   string
	Avatar        File
	Badges        uint32
	Status        *UserStatus
	Flags         uint32
	Privileged    bool
	BotOwnerID    *string
	Relationship  Relationship
	Online        bool
}

func NewUser(data UserData) *User {
	u := &User{
		ID:            data.ID,
		Username:      data.Username,
		Discriminator: data.Discriminator,
		DisplayName:   data.Username,
		Avatar:        data.Avatar,
		Badges:        data.Badges,
		Status:        data.Status.clone(),
		Flags:         data.Flags,
		Privileged:    data.Privileged,
		Relationship:  data.Relationship,
		Online:        data.Online,
	}
	if u.Relationship == "" {
		u.Relationship = RelationshipNone
	}
	if data.DisplayName != nil && *data.DisplayName != "" {
		u.DisplayName = *data.DisplayName
	}
	if data.Bot != nil {
		owner := data.Bot.Owner
		u.BotOwnerID = &owner
	}
	return u
}

// IsSelf reports whether u is the authenticated user.
func (u *User) IsSelf() bool {
	return u.Relationship == RelationshipUser
}

// IsBot reports whether u is a bot account.
func (u *User) IsBot() bool {
	return u.BotOwnerID != nil
}

// Tag renders username#discriminator.
func (u *User) Tag() string {
	return u.Username + "#" + u.Discriminator
}

func (u *User) Clone() *User {
	c := *u
	c.Avatar = cloneSlice(u.Avatar)
	c.Status = u.Status.clone()
	c.BotOwnerID = clonePtr(u.BotOwnerID)
	return &c
}

// withCleared folds a clear list into the patch. Cleared fields are written
// as explicit nulls, so they win over anything the patch carried for them.
func (u *User) withCleared(p UserPatch, fields []UserField) UserPatch {
	var clearText, clearPresence bool
	for _, f := range fields {
		switch f {
		case UserFieldAvatar:
			p.Avatar = Null[File]()
		case UserFieldDisplayName:
			p.DisplayName = Null[string]()
		case UserFieldStatusText:
			clearText = true
		case UserFieldStatusPresence:
			clearPresence = true
		}
	}
	if !clearText && !clearPresence {
		return p
	}

	status := UserStatus{}
	if u.Status != nil {
		status = *u.Status.clone()
	}
	if p.Status.Valid {
		if p.Status.Value.Text != nil {
			status.Text = clonePtr(p.Status.Value.Text)
		}
		if p.Status.Value.Presence != nil {
			status.Presence = clonePtr(p.Status.Value.Presence)
		}
	}
	if clearText {
		status.Text = nil
	}
	if clearPresence {
		status.Presence = nil
	}
	p.Status = Some(status)
	return p
}

// Update applies a partial update. Fields named in clear are nulled first.
func (u *User) Update(p UserPatch, clear ...UserField) {
	p = u.withCleared(p, clear)
	if p.Username.Valid && p.Username.Value != "" {
		u.Username = p.Username.Value
	}
	if p.Discriminator.Valid && p.Discriminator.Value != "" {
		u.Discriminator = p.Discriminator.Value
	}
	if p.Avatar.Present {
		u.Avatar = p.Avatar.Value
		if !p.Avatar.Valid {
			u.Avatar = nil
		}
	}
	if p.DisplayName.Present {
		u.DisplayName = u.Username
		if p.DisplayName.Valid && p.DisplayName.Value != "" {
			u.DisplayName = p.DisplayName.Value
		}
	}
	if p.Flags.Present {
		u.Flags = p.Flags.Value
	}
	if p.Badges.Present {
		u.Badges = p.Badges.Value
	}
	if p.Privileged.Present {
		u.Privileged = p.Privileged.Value
	}
	if p.Status.Present {
		if p.Status.Valid {
			s := p.Status.Value
			u.Status = s.clone()
		} else {
			u.Status = nil
		}
	}
	if p.Relationship.Valid {
		u.Relationship = p.Relationship.Value
	}
	if p.Online.Present {
		u.Online = p.Online.Value
	}
}
