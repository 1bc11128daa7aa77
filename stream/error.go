package stream

// ErrCancelled is returned by Pull after the stream was cancelled. Err is
// the error the in-flight pull was aborted with, if any.
type ErrCancelled struct {
	Err error
}

func (e ErrCancelled) Error() string {
	if e.Err == nil {
		return "the stream was cancelled"
	}
	return "the stream was cancelled: " + e.Err.Error()
}

func (e ErrCancelled) Unwrap() error {
	return e.Err
}
