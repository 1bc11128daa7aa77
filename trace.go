package avcompose

import (
	"context"

	"github.com/xaionaro-go/avcompose/types"
	"github.com/xaionaro-go/xsync"
)

// Step is one decision taken during resolution.
type Step struct {
	Target Target
	Shape  Shape
	Action Action

	// OwnershipMode is the mode the step gives to the stage it produces;
	// for a muxer it is the mode of its upstream.
	OwnershipMode types.OwnershipMode
}

// Trace records the steps of a resolution. Steps of a Future input are
// recorded once the future settles.
type Trace struct {
	locker xsync.Mutex
	steps  []Step
}

func (t *Trace) add(ctx context.Context, step Step) {
	if t == nil {
		return
	}
	t.locker.Do(xsync.WithNoLogging(ctx, true), func() {
		t.steps = append(t.steps, step)
	})
}

func (t *Trace) Steps() []Step {
	return xsync.DoR1(xsync.WithNoLogging(context.Background(), true), &t.locker, func() []Step {
		return append([]Step(nil), t.steps...)
	})
}

// Synthesized returns the kinds of the initializers resolution had to
// create, outermost first.
func (t *Trace) Synthesized() []types.Kind {
	return t.kinds(ActionWrap)
}

// Built returns the kinds of the stages whose builders ran, outermost first.
func (t *Trace) Built() []types.Kind {
	return t.kinds(ActionBuild)
}

// Chain returns the kinds of the built stages in data flow order.
func (t *Trace) Chain() []types.Kind {
	built := t.Built()
	result := make([]types.Kind, 0, len(built))
	for idx := len(built) - 1; idx >= 0; idx-- {
		result = append(result, built[idx])
	}
	return result
}

func (t *Trace) kinds(actionType ActionType) []types.Kind {
	var result []types.Kind
	for _, step := range t.Steps() {
		if step.Action.Type == actionType {
			result = append(result, step.Action.Kind)
		}
	}
	return result
}
