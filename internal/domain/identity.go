package domain

// Identity is the canonical representation of a participant. The core never
// creates identities; they are resolved from the external user directory and
// referenced by their canonical id (an email-like address).
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar,omitempty"`
}

// DirectoryEntry is a row in the external user directory. SecondaryKey holds
// the legacy seller-reference/username under which older clients know the user.
type DirectoryEntry struct {
	CanonicalID  string `json:"canonical_id"`
	SecondaryKey string `json:"secondary_key,omitempty"`
	DisplayName  string `json:"display_name"`
	Avatar       string `json:"avatar,omitempty"`
}

// Identity converts a directory entry into the resolved identity handed to callers.
func (e *DirectoryEntry) Identity() Identity {
	return Identity{
		ID:          e.CanonicalID,
		DisplayName: e.DisplayName,
		Avatar:      e.Avatar,
	}
}
