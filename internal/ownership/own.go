package ownership

import (
	"sync"

	"github.com/sigil-lang/sigil/internal/value"
)

// Own is #own: the wrapped resource's release callback runs exactly once, on
// explicit Close or on Drop, whichever comes first, including the
// cancellation cleanup path.
type Own struct {
	mu       sync.Mutex
	released bool
	res      value.Value
	release  func(value.Value) error
}

func (s *Store) WrapOwn(res value.Value, release func(value.Value) error) *Own {
	return &Own{res: res, release: release}
}

func (o *Own) Kind() Kind { return KindOwn }

// Get reads the resource; after release it fails BorrowViolation.
func (o *Own) Get() (value.Value, *value.Error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.released {
		return value.Value{}, value.NewError(value.BorrowViolation,
			"read of a released #own resource")
	}
	return o.res, nil
}

// Released is inspectable for tests.
func (o *Own) Released() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.released
}

// Close runs the release callback. The first call wins; later calls are
// no-ops. A failing callback surfaces as ResourceReleaseFailure.
func (o *Own) Close() *value.Error {
	o.mu.Lock()
	if o.released {
		o.mu.Unlock()
		return nil
	}
	o.released = true
	res := o.res
	release := o.release
	o.res = value.Zero
	o.release = nil
	o.mu.Unlock()

	if release == nil {
		return nil
	}
	if err := release(res); err != nil {
		return value.NewError(value.ResourceReleaseFailure,
			"release callback failed: %v", err)
	}
	return nil
}

// Drop is Close with the error discarded; scope exit has nowhere to
// surface it.
func (o *Own) Drop() {
	_ = o.Close()
}
