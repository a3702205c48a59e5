package music

import "fmt"

// NotFoundError reports a lookup miss for a catalog entity.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

// AlreadyExistsError reports a uniqueness violation, e.g. a duplicate
// track path.
type AlreadyExistsError struct {
	Entity string
	Key    string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Entity, e.Key)
}

// BadQueryError reports a malformed query expression.
type BadQueryError struct {
	Detail string
}

func (e *BadQueryError) Error() string {
	return "bad query: " + e.Detail
}

// UnreadableFileError reports a file that is not a recognized audio
// container. Non-fatal within an import.
type UnreadableFileError struct {
	Path string
	Err  error
}

func (e *UnreadableFileError) Error() string {
	return fmt.Sprintf("unreadable file %s: %v", e.Path, e.Err)
}

func (e *UnreadableFileError) Unwrap() error { return e.Err }

// IoError reports a filesystem transport failure.
type IoError struct {
	Path string
	Err  error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("io error on %s: %v", e.Path, e.Err)
}

func (e *IoError) Unwrap() error { return e.Err }

// StoreError reports a database failure, generally fatal to the current
// operation.
type StoreError struct {
	Detail string
	Err    error
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		if e.Detail != "" {
			return fmt.Sprintf("store error: %s: %v", e.Detail, e.Err)
		}
		return fmt.Sprintf("store error: %v", e.Err)
	}
	return "store error: " + e.Detail
}

func (e *StoreError) Unwrap() error { return e.Err }

// HookFailureError reports a plugin hook that raised an error. It is
// logged and treated as a Continue verdict, never aborting an import.
type HookFailureError struct {
	Script string
	Hook   string
	Err    error
}

func (e *HookFailureError) Error() string {
	return fmt.Sprintf("hook %s.%s failed: %v", e.Script, e.Hook, e.Err)
}

func (e *HookFailureError) Unwrap() error { return e.Err }

// ImportAbortedError is produced by a hook's Abort verdict and terminates
// the import run.
type ImportAbortedError struct {
	Reason string
}

func (e *ImportAbortedError) Error() string {
	return "import aborted: " + e.Reason
}
