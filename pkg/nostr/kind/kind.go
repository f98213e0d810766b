// Package kind is the event type enumeration of the nostr protocol. The
// constants live in their own package so call sites read as kind.TextNote
// rather than a longer, stuttering name.
package kind

// T is the event type in the nostr protocol.
type T uint16

func (ki T) ToInt() int       { return int(ki) }
func (ki T) ToUint16() uint16 { return uint16(ki) }

const (
	// ProfileMetadata stores user profile data: name, bio, picture, etc.
	ProfileMetadata T = 0
	// TextNote is a standard short plain text note.
	TextNote T = 1
	// RecommendRelay suggests a relay to followers.
	RecommendRelay T = 2
	// FollowList is the contact list, a list of followed pubkeys in p tags
	// with optional relay hint and local alias (petname) elements.
	FollowList T = 3
	// EncryptedDirectMessage is a private message readable only by the
	// pubkey in the p tag.
	EncryptedDirectMessage T = 4
	// Deletion requests removal of prior events by the same author.
	Deletion T = 5
	// Repost rebroadcasts another event.
	Repost T = 6
	// Reaction is a like/emoji response to an event.
	Reaction T = 7
	// ClientAuthentication is the NIP-42 auth response event.
	ClientAuthentication T = 22242
)

// IsEphemeral means the event is not stored by relays.
func (ki T) IsEphemeral() bool { return ki >= 20000 && ki < 30000 }

// IsReplaceable means a newer event of the same kind and author replaces the
// older one (profile and follow list behave this way).
func (ki T) IsReplaceable() bool {
	return ki == ProfileMetadata || ki == FollowList ||
		ki == RecommendRelay || (ki >= 10000 && ki < 20000)
}
