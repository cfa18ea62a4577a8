package progress

// SubscriberCount returns the number of live subscribers of correlationID.
func (b *MemoryBus) SubscriberCount(correlationID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[correlationID])
}
