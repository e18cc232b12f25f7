package journal

import "github.com/google/uuid"

// TokenGenerator mints run ids for new recordings.
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Generator mints time-ordered run tokens, so runs listed from one
// database sort chronologically.
type UUIDv7Generator struct{}

// Generate returns a fresh "run-<uuidv7>" token.
func (UUIDv7Generator) Generate() string {
	return "run-" + uuid.Must(uuid.NewV7()).String()
}
