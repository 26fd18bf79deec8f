package permission

// DefaultOverrideID scopes an override to everyone rather than a role.
const DefaultOverrideID = "Default"

// Override is an allow/deny pair attached to a role (or the default scope) on
// a server or channel.
type Override struct {
	ID    string
	Allow BitField
	Deny  BitField
}

// OverrideField is the wire shape of an override.
type OverrideField struct {
	Allow BitField `json:"a"`
	Deny  BitField `json:"d"`
}

// NewOverride builds an override scoped to id.
func NewOverride(id string, field OverrideField) *Override {
	return &Override{ID: id, Allow: field.Allow, Deny: field.Deny}
}

// Apply returns (perm | allow) &^ deny. A nil override leaves perm untouched.
func (o *Override) Apply(perm BitField) BitField {
	if o == nil {
		return perm
	}
	return perm.Or(o.Allow).AndNot(o.Deny)
}

// Field returns the wire shape.
func (o *Override) Field() OverrideField {
	return OverrideField{Allow: o.Allow, Deny: o.Deny}
}

// Clone returns a copy of o. BitFields are immutable, so a shallow copy is
// enough.
func (o *Override) Clone() *Override {
	if o == nil {
		return nil
	}
	c := *o
	return &c
}
