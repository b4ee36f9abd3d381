package types

// SecretString holds a sensitive value (API key, connection string) and
// redacts itself in every rendered form: String() and MarshalJSON() both
// return a placeholder, so a secret cannot leak through fmt verbs, structured
// log attributes, or a serialized config dump.
//
// Call Unmask() at the single point where the raw value is genuinely needed,
// such as building an Authorization header or opening a database pool.
type SecretString string

const secretPlaceholder = "***REDACTED***"

// String returns a redacted placeholder instead of the raw value.
func (s SecretString) String() string { return secretPlaceholder }

// MarshalJSON returns the redacted placeholder as a JSON string.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + secretPlaceholder + `"`), nil
}

// Unmask returns the raw plaintext value of the secret.
func (s SecretString) Unmask() string { return string(s) }
