package testutil

// FixedTokenGenerator always returns the same run token, which keeps
// journal contents byte-stable across runs of the same test.
//
// Implements journal.TokenGenerator.
type FixedTokenGenerator struct {
	token string
}

// NewFixedTokenGenerator creates a generator for the given token. An
// empty token defaults to "run-test".
func NewFixedTokenGenerator(token string) *FixedTokenGenerator {
	if token == "" {
		token = "run-test"
	}
	return &FixedTokenGenerator{token: token}
}

// Generate returns the fixed token.
func (g *FixedTokenGenerator) Generate() string {
	return g.token
}
