package domain

// Signal bus channels. Payloads are JSON objects with an "event" field.
const (
	ChannelCatalog       = "catalog"
	ChannelCandidates    = "candidates"
	ChannelPairs         = "pairs"
	ChannelOpportunities = "opportunities"
	ChannelExecutions    = "executions"
	ChannelPositions     = "positions"

	// StreamExecutions is the durable stream of execution outcomes.
	StreamExecutions = "stream:executions"
)
