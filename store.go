package authcore

import (
	"context"
	"time"
)

// CredentialStore is the persistence boundary for accounts. Lookups that miss
// return [ErrAccountNotFound]; any other error is treated as a storage failure.
// Implementations return copies so callers may mutate results freely.
type CredentialStore interface {
	FindByUsername(ctx context.Context, username string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	Save(ctx context.Context, account *Account) error
}

// AtomicUpdater is implemented by stores that can apply a mutation to the latest
// version of an account without interleaving with concurrent updates. When fn
// returns an error nothing is written and the error is returned unchanged.
type AtomicUpdater interface {
	Update(ctx context.Context, id string, fn func(*Account) error) (*Account, error)
}

// AccountCreator is implemented by stores that support inserting new accounts.
// Duplicate usernames or emails must yield [ErrAccountExists].
type AccountCreator interface {
	Create(ctx context.Context, account *Account) error
}

// AccountLister is implemented by stores that can enumerate accounts.
type AccountLister interface {
	List(ctx context.Context, offset, limit int) ([]*Account, error)
}

// AccountSearcher is implemented by stores that can filter accounts by a
// case-insensitive substring of username or email. Results are ordered like
// [AccountLister.List].
type AccountSearcher interface {
	Search(ctx context.Context, query string, offset, limit int) ([]*Account, error)
}

// RevocationSet holds ids of tokens that must be rejected before their natural
// expiry. Entries may be forgotten once expiresAt has passed.
type RevocationSet interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// RevocationConsumer is implemented by revocation sets that can check and revoke
// in one step. Consume reports true only for the call that added tokenID.
type RevocationConsumer interface {
	Consume(ctx context.Context, tokenID string, expiresAt time.Time) (bool, error)
}
