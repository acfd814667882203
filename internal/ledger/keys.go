package ledger

// Persisted key layout. Every record is a flat, prefix-keyed JSON value;
// nothing is nested. The current-message pointer is the rotation commit
// point: swapping it is a single put, so readers never observe "no current
// message" mid-rotation.
const (
	currentMessageKey = "message:current"

	messagePrefix  = "message:"
	responsePrefix = "response:"
	indexPrefix    = "respindex:"
	payoutPrefix   = "payout:"
	checkInPrefix  = "checkin:"
	agentPrefix    = "agent:"
)

func messageKey(id string) string        { return messagePrefix + id }
func responseKey(id, addr string) string { return responsePrefix + id + ":" + addr }
func indexKey(addr string) string        { return indexPrefix + addr }
func payoutKey(id, addr string) string   { return payoutPrefix + id + ":" + addr }
func checkInKey(addr string) string      { return checkInPrefix + addr }
func agentKey(addr string) string        { return agentPrefix + addr }
