// Package warehouse runs queries generated by the agent's analyst tool so
// their results can be shown beside the query.
package warehouse
