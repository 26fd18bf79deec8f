package model

import "github.com/Gopher0727/chatsync/pkg/cache"

// Cache holds every process-wide entity store. Servers and channels refer to
// each other by id and resolve through it.
type Cache struct {
	Users    *cache.Store[string, *User]
	Servers  *cache.Store[string, *Server]
	Channels *cache.Store[string, Channel]
	Messages *cache.Store[string, *Message]
	Emojis   *cache.Store[string, *Emoji]
	Unreads  *cache.Store[string, *ChannelUnread]
}

func NewCache() *Cache {
	return &Cache{
		Users:    cache.NewStore[string, *User](),
		Servers:  cache.NewStore[string, *Server](),
		Channels: cache.NewStore[string, Channel](),
		Messages: cache.NewStore[string, *Message](),
		Emojis:   cache.NewStore[string, *Emoji](),
		Unreads:  cache.NewStore[string, *ChannelUnread](),
	}
}

func (c *Cache) User(id string) (*User, bool) {
	return c.Users.Get(id)
}

func (c *Cache) Server(id string) (*Server, bool) {
	return c.Servers.Get(id)
}

func (c *Cache) Channel(id string) (Channel, bool) {
	return c.Channels.Get(id)
}

// Member looks up userID inside serverID.
func (c *Cache) Member(serverID, userID string) (*Member, bool) {
	s, ok := c.Servers.Get(serverID)
	if !ok {
		return nil, false
	}
	return s.Members.Get(userID)
}

// Self returns the authenticated user, found by its relationship.
func (c *Cache) Self() (*User, bool) {
	return c.Users.Find(func(u *User) bool { return u.IsSelf() })
}

// ServerChannels resolves the channel ids of a server, skipping unknown ids.
func (c *Cache) ServerChannels(s *Server) []Channel {
	out := make([]Channel, 0, len(s.ChannelIDs))
	for _, id := range s.ChannelIDs {
		if ch, ok := c.Channels.Get(id); ok {
			out = append(out, ch)
		}
	}
	return out
}

// RemoveServer drops a server together with the channels it lists.
func (c *Cache) RemoveServer(id string) (*Server, bool) {
	s, ok := c.Servers.Delete(id)
	if !ok {
		return nil, false
	}
	for _, chID := range s.ChannelIDs {
		c.Channels.Delete(chID)
	}
	return s, true
}

// Sizes reports the number of entries per store.
func (c *Cache) Sizes() map[string]int {
	return map[string]int{
		"users":    c.Users.Len(),
		"servers":  c.Servers.Len(),
		"channels": c.Channels.Len(),
		"messages": c.Messages.Len(),
		"emojis":   c.Emojis.Len(),
		"unreads":  c.Unreads.Len(),
	}
}

// Reset empties every store.
func (c *Cache) Reset() {
	c.Users.Clear()
	c.Servers.Clear()
	c.Channels.Clear()
	c.Messages.Clear()
	c.Emojis.Clear()
	c.Unreads.Clear()
}

// SharesSpace reports whether userID is a recipient of a cached group or
// direct message, or a member of a cached server.
func (c *Cache) SharesSpace(userID string) bool {
	_, ok := c.Channels.Find(func(ch Channel) bool {
		switch v := ch.(type) {
		case *Group:
			return v.HasRecipient(userID)
		case *DirectMessage:
			return containsString(v.RecipientIDs, userID)
		}
		return false
	})
	if ok {
		return true
	}
	_, ok = c.Servers.Find(func(s *Server) bool { return s.Members.Has(userID) })
	return ok
}
