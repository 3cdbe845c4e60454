package llm

// NonJSONPolicy decides what happens to an upstream data payload that is
// neither the done sentinel nor valid JSON. Providers disagree on whether such
// payloads are plain text, so the policy is chosen per provider adapter.
type NonJSONPolicy int

const (
	// NonJSONDrop discards the payload and logs it.
	NonJSONDrop NonJSONPolicy = iota

	// NonJSONPassthrough relays the trimmed payload as a Chunk.
	NonJSONPassthrough
)

// String returns the config name of the policy.
func (p NonJSONPolicy) String() string {
	switch p {
	case NonJSONPassthrough:
		return "passthrough"
	default:
		return "drop"
	}
}
