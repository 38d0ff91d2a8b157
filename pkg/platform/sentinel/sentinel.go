package sentinel

import "errors"

// Infrastructure facts returned by stores (optionally wrapped). Services
// translate them into domain errors; handlers never see them directly.
//
//   - ErrNotFound: the row does not exist
//   - ErrConflict: a unique constraint rejected the write
//   - ErrForeignKey: a foreign key constraint rejected the write
//   - ErrUnavailable: the database could not be reached
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrForeignKey  = errors.New("foreign key violation")
	ErrUnavailable = errors.New("unavailable")
)
