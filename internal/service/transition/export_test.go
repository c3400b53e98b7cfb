package transition

import "context"

// SetBeforeSwap installs fn between the status read and the compare-and-set
// of Transition.
func SetBeforeSwap(e *Engine, fn func(ctx context.Context, subj Subject, id string)) {
	e.beforeSwap = fn
}
