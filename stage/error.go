package stage

// ErrNoBridge is wrapped into types.ErrEngineFailure when a native frame has
// to be converted but the pipeline has no bridge.
type ErrNoBridge struct{}

func (ErrNoBridge) Error() string {
	return "no codec bridge is configured"
}
