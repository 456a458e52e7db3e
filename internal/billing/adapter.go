package billing

import "context"

// Adapter is the read contract the engine needs from the billing platform.
// An empty NextCursor means the last page was returned.
type Adapter interface {
	ListCustomers(ctx context.Context, cursor string) (CustomerPage, error)
	// ListSubscriptions pages subscriptions; an empty status lists every status.
	ListSubscriptions(ctx context.Context, status Status, cursor string) (SubscriptionPage, error)
}

// WalkCustomers calls fn for every page until the cursor runs out or fn fails.
func WalkCustomers(ctx context.Context, a Adapter, fn func([]Customer) error) error {
	cursor := ""
	for {
		page, err := a.ListCustomers(ctx, cursor)
		if err != nil {
			return err
		}
		if err := fn(page.Customers); err != nil {
			return err
		}
		if page.NextCursor == "" || page.NextCursor == cursor {
			return nil
		}
		cursor = page.NextCursor
	}
}

// WalkSubscriptions calls fn for every page of subscriptions with the given status.
func WalkSubscriptions(ctx context.Context, a Adapter, status Status, fn func([]Subscription) error) error {
	cursor := ""
	for {
		page, err := a.ListSubscriptions(ctx, status, cursor)
		if err != nil {
			return err
		}
		if err := fn(page.Subscriptions); err != nil {
			return err
		}
		if page.NextCursor == "" || page.NextCursor == cursor {
			return nil
		}
		cursor = page.NextCursor
	}
}
