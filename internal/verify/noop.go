package verify

// noopVerifier is used when a package's metadata carries no pub_key:
// verification is skipped and every stream validates.
type noopVerifier struct{}

func (noopVerifier) Update(_ []byte) {}
func (noopVerifier) Validate() bool  { return true }
