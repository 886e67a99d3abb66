package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_IsCanonicalHandle(t *testing.T) {
	req := require.New(t)

	req.True(IsCanonicalHandle("alice@campus.edu"))
	req.True(IsCanonicalHandle(" alice@campus.edu "))
	req.False(IsCanonicalHandle("seller_bob"))
	req.False(IsCanonicalHandle(""))
	req.False(IsCanonicalHandle("Alice <alice@campus.edu>"))
}

func Test_LocalPart(t *testing.T) {
	req := require.New(t)

	req.Equal("alice", LocalPart("alice@campus.edu"))
	req.Equal("seller_bob", LocalPart("seller_bob"))
}

func Test_ValidateMessageBody(t *testing.T) {
	req := require.New(t)

	req.False(ValidateMessageBody("hello").HasErrors())
	req.True(ValidateMessageBody("   ").HasErrors())
	req.True(ValidateMessageBody(strings.Repeat("x", 5000)).HasErrors())
}

func Test_ValidateHandle(t *testing.T) {
	req := require.New(t)

	req.False(ValidateHandle("seller_bob").HasErrors())
	req.True(ValidateHandle("").HasErrors())
	req.True(ValidateHandle(strings.Repeat("a", 400)).HasErrors())
}
