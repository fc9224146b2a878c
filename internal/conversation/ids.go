// ABOUTME: Message identifier rules for user and assistant turns
// ABOUTME: Provisional user ids are parent+1; assistant ids come from the agent or fall back to user+1

package conversation

import "strconv"

// AssignProvisionalUserMessageID returns the id for a user message sent
// after parent. The agent never assigns user message ids.
func AssignProvisionalUserMessageID(parent int64) int64 {
	return parent + 1
}

// ParseMessageID accepts only a plain run of ASCII digits that fits in int64.
// Signs, spaces, decimal points and exponents are rejected.
func ParseMessageID(raw string) (int64, bool) {
	if raw == "" {
		return 0, false
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] < '0' || raw[i] > '9' {
			return 0, false
		}
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// ResolveFinalAssistantMessageID returns returned when it is a well-formed
// non-negative integer, otherwise provisionalUserID+1.
func ResolveFinalAssistantMessageID(returned string, provisionalUserID int64) int64 {
	if id, ok := ParseMessageID(returned); ok {
		return id
	}
	return provisionalUserID + 1
}
