package pipeline

// Outcome is how an event ended; every outcome is acknowledged to the
// gateway with a 200.
type Outcome int

const (
	Processed Outcome = iota
	Ignored
	Duplicate
	NoMetadata
	UnknownTenant
)

// Ack is the plaintext body returned to the gateway.
func (o Outcome) Ack() string {
	switch o {
	case Processed:
		return "EVENT_RECEIVED"
	case Duplicate:
		return "ALREADY_PROCESSED"
	case NoMetadata:
		return "NO_METADATA"
	case UnknownTenant:
		return "TENANT_NOT_FOUND"
	}
	return "OK"
}

func (o Outcome) String() string {
	switch o {
	case Processed:
		return "processed"
	case Duplicate:
		return "duplicate"
	case NoMetadata:
		return "no_metadata"
	case UnknownTenant:
		return "unknown_tenant"
	}
	return "ignored"
}
