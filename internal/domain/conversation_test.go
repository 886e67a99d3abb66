package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_PairKey_IsOrderInsensitive(t *testing.T) {
	req := require.New(t)

	k1 := PairKey("alice@campus.edu", "bob@campus.edu")
	k2 := PairKey("bob@campus.edu", "alice@campus.edu")
	req.Equal(k1, k2)

	k3 := PairKey("alice@campus.edu", "carol@campus.edu")
	req.NotEqual(k1, k3)
}

func Test_PairKey_SeparatorAmbiguity(t *testing.T) {
	req := require.New(t)

	// Concatenation without a separator would collide these pairs.
	k1 := PairKey("ab", "c")
	k2 := PairKey("a", "bc")
	req.NotEqual(k1, k2)
}

func Test_Conversation_OtherAndUnread(t *testing.T) {
	req := require.New(t)

	conv := Conversation{
		Participants: [2]Participant{
			{IdentityID: "alice@campus.edu", Unread: 2},
			{IdentityID: "bob@campus.edu", Unread: 0},
		},
	}

	other, ok := conv.Other("alice@campus.edu")
	req.True(ok)
	req.Equal("bob@campus.edu", other.IdentityID)

	_, ok = conv.Other("mallory@campus.edu")
	req.False(ok)

	req.Equal(int64(2), conv.UnreadFor("alice@campus.edu"))
	req.Equal(int64(0), conv.UnreadFor("mallory@campus.edu"))
	req.True(conv.Has("bob@campus.edu"))
	req.False(conv.Has("mallory@campus.edu"))
}
