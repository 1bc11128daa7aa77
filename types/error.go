package types

import "fmt"

// ErrUnrecognizedInitializer is returned when resolution reaches an
// initializer whose kind has no builder and which is not a stage.
type ErrUnrecognizedInitializer struct {
	Kind Kind
}

func (e ErrUnrecognizedInitializer) Error() string {
	return fmt.Sprintf("unrecognized initializer kind '%s'", e.Kind)
}

// ErrUnsupportedStage is returned for kinds that are recognized but not
// implemented (filter stages).
type ErrUnsupportedStage struct {
	Kind Kind
}

func (e ErrUnsupportedStage) Error() string {
	return fmt.Sprintf("stage kind '%s' is not supported", e.Kind)
}

// ErrIncompatibleInput is returned when the input of an initializer cannot
// be placed upstream of the requested stage (e.g. a demuxer over an encoder
// initializer).
type ErrIncompatibleInput struct {
	Requested string
	Actual    string
}

func (e ErrIncompatibleInput) Error() string {
	return fmt.Sprintf("%s cannot be used as the input of %s", e.Actual, e.Requested)
}

// ErrUnknownVideoSize is returned when a video stream is to be encoded but
// neither its metadata nor the encoder configuration tells the frame size,
// as for frame streams supplied by the caller.
type ErrUnknownVideoSize struct {
	Input StreamParameters
}

func (e ErrUnknownVideoSize) Error() string {
	return fmt.Sprintf("the frame size of %s is not known, the video encoder configuration has to set the width and the height", e.Input)
}

// ErrSelfReferentialInitializer is returned when an initializer is
// (transitively) its own input.
type ErrSelfReferentialInitializer struct {
	Kind Kind
}

func (e ErrSelfReferentialInitializer) Error() string {
	return fmt.Sprintf("initializer of kind '%s' is its own input", e.Kind)
}

// ErrMalformedPayload is returned by a stage that received a batch it
// cannot interpret. It terminates that stage's stream.
type ErrMalformedPayload struct {
	StreamIndex int
	Reason      string
}

func (e ErrMalformedPayload) Error() string {
	return fmt.Sprintf("malformed payload at logical stream #%d: %s", e.StreamIndex, e.Reason)
}

// ErrEngineFailure wraps an error returned by the codec engine or bridge.
type ErrEngineFailure struct {
	Op  string
	Err error
}

func (e ErrEngineFailure) Error() string {
	return fmt.Sprintf("engine failure on %s: %v", e.Op, e.Err)
}

func (e ErrEngineFailure) Unwrap() error {
	return e.Err
}
