package ports

import "github.com/eventplanner/planner/internal/core/domain"

// Subscription is a live change-feed registration.
type Subscription interface {
	Unsubscribe()
}

// ChangeFeed delivers row mutations of table whose column equals value.
type ChangeFeed interface {
	Subscribe(table, column, value string, fn func(domain.ChangeEvent)) (Subscription, error)
}
