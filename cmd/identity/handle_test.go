package identity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlugifyHandle(t *testing.T) {
	cases := map[string]string{
		"Tony Hawk":        "tony-hawk",
		"  --skate__rat--": "skate-rat",
		"ab":               "user-ab",
		"":                 "user",
		"!!!":              "user",
		"x.y.z.":           "x-y-z",
	}
	for in, want := range cases {
		got := SlugifyHandle(in)
		require.Equal(t, want, got, in)
		require.True(t, ValidHandle(got), got)
	}

	long := SlugifyHandle(strings.Repeat("a", 64))
	require.LessOrEqual(t, len(long)+5, HandleMaxLen)
	require.True(t, ValidHandle(long))
}

func TestHandleBase(t *testing.T) {
	require.Equal(t, "Hint", HandleBase("Hint", TypeHive, "alice"))
	require.Equal(t, "alice", HandleBase("", TypeHive, "alice"))
	require.Equal(t, "wallet-5aaeb6", HandleBase("", TypeEVM, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"))
	require.Equal(t, "fc-42", HandleBase("", TypeFarcaster, "42"))
	require.Equal(t, "rider", HandleBase("", "", "rider@example.com"))
}

func TestValidHandle(t *testing.T) {
	require.True(t, ValidHandle("abc"))
	require.True(t, ValidHandle("a-1"))
	require.False(t, ValidHandle("ab"))
	require.False(t, ValidHandle("-abc"))
	require.False(t, ValidHandle("abc-"))
	require.False(t, ValidHandle("ABC"))
	require.False(t, ValidHandle(strings.Repeat("a", HandleMaxLen+1)))
}
