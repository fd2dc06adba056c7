package sqlstore

import "github.com/goliatone/go-bookings/core"

var (
	_ core.CredentialStore        = (*CredentialStore)(nil)
	_ core.BookingStore           = (*BookingStore)(nil)
	_ core.UnmatchedEventStore    = (*UnmatchedEventStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
