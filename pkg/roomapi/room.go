// Package roomapi is a client for the conferencing backend's REST API.
//
// Scenarios use it to cross-check state changed through the UI, e.g. that a
// room created in the dashboard is stored with the chosen view policy.
package roomapi

// ViewPolicy controls who can see and enter a room.
type ViewPolicy string

const (
	Public   ViewPolicy = "public"
	Unlisted ViewPolicy = "unlisted"
	Private  ViewPolicy = "private"
	Password ViewPolicy = "password"
)

// Valid reports whether p is a known policy.
func (p ViewPolicy) Valid() bool {
	switch p {
	case Public, Unlisted, Private, Password:
		return true
	}
	return false
}

// PublishPolicy controls who can publish media in a room.
type PublishPolicy string

const (
	Guest PublishPolicy = "guest"
	Login PublishPolicy = "login"
	Owner PublishPolicy = "owner"
)

// Valid reports whether p is a known policy.
func (p PublishPolicy) Valid() bool {
	switch p {
	case Guest, Login, Owner:
		return true
	}
	return false
}

// Layout controls how remote publishers are shown.
type Layout string

const (
	// Auto shows at most MaxVideoConsumers remote videos.
	Auto Layout = "auto"
	// Full shows every remote video.
	Full Layout = "full"
)

// Valid reports whether l is a known layout.
func (l Layout) Valid() bool {
	return l == Auto || l == Full
}

// DefaultMaxVideoConsumers is the number of remote videos shown with the
// auto layout unless the room says otherwise.
const DefaultMaxVideoConsumers = 8

// Room is the backend representation of a conference room.
type Room struct {
	ID                string        `json:"_id"`
	Title             string        `json:"title"`
	ViewPolicy        ViewPolicy    `json:"view_policy"`
	PublishPolicy     PublishPolicy `json:"rtcPublishPolicy"`
	Layout            Layout        `json:"rtcLayout"`
	MaxVideoConsumers int           `json:"rtcMaxVideoConsumers"`
	AdminViewOnly     bool          `json:"rtcAdminViewOnly"`
	ShowMediaSettings bool          `json:"rtcShowMediaSettings"`
	Locked            bool          `json:"rtcLocked"`
	// Auth is set on rooms that require a password to enter.
	Auth bool `json:"auth"`
}

// NewRoom returns a room with the backend defaults: unlisted, guests may
// publish, auto layout with eight remote videos.
func NewRoom(title string) Room {
	return Room{
		Title:             title,
		ViewPolicy:        Unlisted,
		PublishPolicy:     Guest,
		Layout:            Auto,
		MaxVideoConsumers: DefaultMaxVideoConsumers,
	}
}
