// Package canonical builds the exact strings agents sign for each
// interaction type. The templates are versioned by their leading tag; any
// change to a tag or separator invalidates every previously issued signature,
// so both are frozen.
package canonical

// Interaction tags. These bind a signature to one interaction type so a
// captured check-in signature cannot be replayed as a task response.
const (
	CheckInTag = "beacon check-in"
	TaskTag    = "beacon task"
)

const separator = " | "

// CheckInMessage returns the string an agent must sign for a liveness
// check-in. The timestamp is embedded verbatim, binding the signature to a
// single point in time.
func CheckInMessage(timestamp string) string {
	return CheckInTag + separator + timestamp
}

// ResponseMessage returns the string an agent must sign when answering the
// task message identified by messageID. The response text is embedded with no
// normalization — whitespace and case are preserved — so signer and verifier
// agree byte-for-byte.
func ResponseMessage(messageID, response string) string {
	return TaskTag + separator + messageID + separator + response
}
