package memstore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"userbase/cmd/identity"
)

func TestUpsertIdentity_ConcurrentLinksOnePrimary(t *testing.T) {
	st := New()
	res, err := st.CreateAccount(context.Background(), identity.CreateAccountInput{
		Handle:   "alice",
		Identity: &identity.NewIdentity{Type: identity.TypeHive, Identifier: "alice"},
	})
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = st.UpsertIdentity(context.Background(), identity.UpsertIdentityInput{
				UserID:     res.User.ID,
				Type:       identity.TypeEVM,
				Identifier: fmt.Sprintf("0x%040x", i+1),
			})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	list, err := st.ListIdentities(context.Background(), res.User.ID)
	require.NoError(t, err)
	var evm, primaries int
	for _, ident := range list {
		if ident.Type == identity.TypeEVM {
			evm++
			if ident.IsPrimary {
				primaries++
			}
		}
	}
	require.Equal(t, n, evm)
	require.Equal(t, 1, primaries)
}
