package orders

const (
	TopicOrderCreated   = "order.created"
	TopicOrderAccepted  = "order.accepted"
	TopicOrderDelivered = "order.delivered"
	TopicOrderArchived  = "order.archived"
)

// Partition key = order id, so every event of one order keeps its order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
