package pipeline

import (
	"errors"
	"fmt"

	"github.com/pbaille/braindump/internal/response"
)

var (
	// ErrInputEmpty means the owner has no pending fragments; nothing was written
	ErrInputEmpty = errors.New("no pending fragments")
	// ErrOracleTimeout means the oracle did not answer within the pass timeout
	ErrOracleTimeout = errors.New("oracle timed out")
	// ErrOracleUnavailable covers every other transport failure reaching the oracle
	ErrOracleUnavailable = errors.New("oracle unavailable")
	// ErrResponseParse means the oracle reply was not the category object
	ErrResponseParse = response.ErrParse
	// ErrPersistenceWrite means the organized items could not be committed
	ErrPersistenceWrite = errors.New("persist organized items")
	// ErrArchivalWrite is recorded on the result; it never aborts a pass
	ErrArchivalWrite = errors.New("archive organized items")
	// ErrPurge means consumed fragments could not be removed after a commit
	ErrPurge = errors.New("purge consumed fragments")
)

// PurgeError reports a pass whose items were committed but whose fragments are still
// pending. The next pass over the same fragments replays onto the committed rows.
type PurgeError struct {
	OwnerID   string
	Committed []string
	Err       error
}

func (e *PurgeError) Error() string {
	return fmt.Sprintf("purge fragments for owner %s after committing %d items, reconciliation required: %v",
		e.OwnerID, len(e.Committed), e.Err)
}

func (e *PurgeError) Unwrap() []error {
	return []error{ErrPurge, e.Err}
}
