package models

import "time"

// ActorKind distinguishes individual contacts from group chats.
type ActorKind string

const (
	ActorKindIndividual ActorKind = "individual"
	ActorKindGroup      ActorKind = "group"
)

// Actor is a persona the user chats with. A group actor owns an ordered
// list of member actor IDs; conversations reference actors by ID only.
type Actor struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Persona        string    `json:"persona"`
	CustomBehavior string    `json:"custom_behavior,omitempty"`
	VoiceID        string    `json:"voice_id,omitempty"`
	Avatar         string    `json:"avatar,omitempty"`
	Kind           ActorKind `json:"kind"`
	MemberIDs      []string  `json:"member_ids,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// IsGroup reports whether the actor is a group chat.
func (a *Actor) IsGroup() bool {
	return a.Kind == ActorKindGroup
}

// UserProfile is the process-wide profile of the human user.
type UserProfile struct {
	Name    string `json:"name"`
	Persona string `json:"persona,omitempty"`
	Avatar  string `json:"avatar,omitempty"`
}

// DisplayName returns the profile name with a fallback for unset profiles.
func (p UserProfile) DisplayName() string {
	if p.Name == "" {
		return "用户"
	}
	return p.Name
}
