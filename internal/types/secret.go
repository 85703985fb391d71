package types

const redactedPlaceholder = "[redacted]"

var redactedJSON = []byte(`"[redacted]"`)

// SecretString holds credentials (API keys, webhook secrets, SMTP passwords)
// loaded from the environment. fmt and encoding/json both see a placeholder, so
// a config struct can be logged or dumped whole.
type SecretString string

func (s SecretString) String() string {
	return redactedPlaceholder
}

func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the plaintext. Call it only at the point of use, such as an
// Authorization header or a DSN.
func (s SecretString) Unmask() string {
	return string(s)
}

// IsSet reports whether a non-empty value was configured.
func (s SecretString) IsSet() bool {
	return s != ""
}
