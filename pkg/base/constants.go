package base

// SessionStateFile is the default on-disk location of the session document.
const SessionStateFile = "session.json"

const (
	UPTRACE_SERVICE     = "mailherald"
	UPTRACE_DSN_ENV_VAR = "UPTRACE_DSN"
)

// ErrNotExist is returned by Storage.Read when no session document has
// been written yet.
type notExistError struct{}

func (notExistError) Error() string { return "session document does not exist" }

var ErrNotExist error = notExistError{}
