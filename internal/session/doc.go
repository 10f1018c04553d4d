// Package session keeps a farm portal login alive across many concurrent
// API requests.
//
// # Architecture
//
// The package is built from small components that are explicitly wired
// together by a Manager:
//
//   - Store: persisted holder of the access/refresh credential pair and the
//     cached user identity (FileStore for processes, MemoryStore for tests
//     and embedding).
//   - IsExpiringSoon: pure check of the exp claim embedded in an access
//     credential.
//   - Coordinator: guarantees that at most one refresh call is in flight.
//     Every caller that overlaps an in-flight refresh observes its single
//     outcome.
//   - RenewalLoop: background ticker that renews ahead of expiry.
//   - Transport: http.RoundTripper that attaches the bearer credential,
//     renews just before expiry and recovers from a 401 by renewing and
//     replaying the request once.
//   - Synchronizer: reacts to credential changes made by other processes
//     sharing the same store (login elsewhere, logout elsewhere).
//
// # Failure model
//
// A failed renewal on the reactive (401) path is terminal: the store is
// cleared, background work is stopped and subscribers receive a LogoutEvent.
// The proactive loop swallows failures and simply tries again on its next
// tick.
//
// # Usage
//
//	store, err := session.NewFileStore(session.FileStoreConfig{
//	    Dir:       dir,
//	    ServerURL: "https://farm.example.com",
//	})
//	mgr, err := session.NewManager(session.Config{Store: store, Backend: api})
//	httpClient.Transport = mgr.Transport(http.DefaultTransport)
//
//	unsubscribe := mgr.Subscribe(func(ev session.LogoutEvent) {
//	    fmt.Println("logged out:", ev.Reason)
//	})
//	defer unsubscribe()
//
//	if _, err := mgr.Login(ctx, email, password); err != nil {
//	    return err
//	}
package session
