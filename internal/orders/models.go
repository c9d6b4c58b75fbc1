package orders

import "time"

// LineItem is the denormalized snapshot of a menu item taken at order time.
// Later catalog edits do not affect existing orders.
type LineItem struct {
	Name      string `json:"name"`
	UnitPrice int    `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

type Order struct {
	ID           string              `json:"id"`
	CustomerName string              `json:"customer_name"`
	Location     string              `json:"location"` // block/door descriptor
	Mobile       string              `json:"mobile"`
	Items        map[string]LineItem `json:"items"` // keyed by menu item id
	Total        int                 `json:"total"`
	Status       Status              `json:"status"`
	CreatedAt    time.Time           `json:"created_at"`
	AcceptedAt   *time.Time          `json:"accepted_at,omitempty"`
	DeliveredAt  *time.Time          `json:"delivered_at,omitempty"`
}

// SubmissionDate is the history partition key: the calendar date the order
// was created.
func (o *Order) SubmissionDate() string {
	return o.CreatedAt.Format("2006-01-02")
}
