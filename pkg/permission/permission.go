package permission

// Permission is a single server or channel permission bit.
type Permission uint64

const (
	ManageChannel       Permission = 1 << 0
	ManageServer        Permission = 1 << 1
	ManagePermissions   Permission = 1 << 2
	ManageRole          Permission = 1 << 3
	ManageCustomisation Permission = 1 << 4
	KickMembers         Permission = 1 << 6
	BanMembers          Permission = 1 << 7
	TimeoutMembers      Permission = 1 << 8
	AssignRoles         Permission = 1 << 9
	ChangeNickname      Permission = 1 << 10
	ManageNicknames     Permission = 1 << 11
	ChangeAvatar        Permission = 1 << 12
	RemoveAvatars       Permission = 1 << 13
	ViewChannel         Permission = 1 << 20
	ReadMessageHistory  Permission = 1 << 21
	SendMessage         Permission = 1 << 22
	ManageMessages      Permission = 1 << 23
	ManageWebhooks      Permission = 1 << 24
	InviteOthers        Permission = 1 << 25
	SendEmbeds          Permission = 1 << 26
	UploadFiles         Permission = 1 << 27
	Masquerade          Permission = 1 << 28
	React               Permission = 1 << 29
	Connect             Permission = 1 << 30
	Speak               Permission = 1 << 31
	Video               Permission = 1 << 32
	MuteMembers         Permission = 1 << 33
	DeafenMembers       Permission = 1 << 34
	MoveMembers         Permission = 1 << 35

	// GrantAllSafe grants every permission that is safe to hand out.
	GrantAllSafe Permission = 0x000F_FFFF_FFFF_FFFF
)

// UserPermission is a permission held against another user.
type UserPermission uint32

const (
	UserAccess      UserPermission = 1 << 0
	UserViewProfile UserPermission = 1 << 1
	UserSendMessage UserPermission = 1 << 2
	UserInvite      UserPermission = 1 << 3
)

// U32Max is every user permission at once.
const U32Max UserPermission = 0xFFFF_FFFF

const (
	// AllowInTimeout is what a timed out member keeps.
	AllowInTimeout = ViewChannel | ReadMessageHistory

	DefaultPermissionViewOnly = ViewChannel | ReadMessageHistory

	DefaultPermission = DefaultPermissionViewOnly |
		SendMessage |
		InviteOthers |
		SendEmbeds |
		UploadFiles |
		Connect |
		Speak

	DefaultPermissionSavedMessages = GrantAllSafe

	DefaultPermissionDirectMessage = DefaultPermission | React | ManageChannel

	DefaultPermissionServer = DefaultPermission | React | ChangeNickname | ChangeAvatar
)

// Has reports whether p contains every bit of flag.
func (p Permission) Has(flag Permission) bool {
	return p&flag == flag
}

// Has reports whether p contains every bit of flag.
func (p UserPermission) Has(flag UserPermission) bool {
	return p&flag == flag
}
