package ports

import "context"

// ChangeNotifier carries "collection changed" signals between writers and
// live subscriptions. Signals carry no payload; subscribers re-read.
type ChangeNotifier interface {
	Notify(ctx context.Context, collection string) error
	// Watch returns a channel that receives at least one value after every
	// Notify for collection. Bursts may be coalesced. Call stop to release it.
	Watch(ctx context.Context, collection string) (signals <-chan struct{}, stop func(), err error)
}
