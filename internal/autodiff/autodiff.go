// Package autodiff tracks whether gradient bookkeeping is enabled.
//
// Layers consult IsGradEnabled before retaining activations for a backward
// pass. Inference wraps its forward pass in NoGrad so nothing is retained:
//
//	restore := autodiff.NoGrad()
//	defer restore()
//	out, err := model.Forward(input)
//
// The flag is process wide. Scopes nest: gradients are enabled again only
// after every NoGrad scope has been restored.
package autodiff

import (
	"sync"
	"sync/atomic"
)

var disabledDepth atomic.Int32

// IsGradEnabled reports whether gradient bookkeeping is currently enabled.
func IsGradEnabled() bool {
	return disabledDepth.Load() == 0
}

// NoGrad disables gradient bookkeeping until the returned restore function
// is called. Calling restore more than once has no further effect.
func NoGrad() (restore func()) {
	disabledDepth.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			disabledDepth.Add(-1)
		})
	}
}

// WithNoGrad runs fn with gradient bookkeeping disabled. The previous mode is
// restored when fn returns or panics.
func WithNoGrad(fn func() error) error {
	restore := NoGrad()
	defer restore()
	return fn()
}
