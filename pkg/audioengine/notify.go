package audioengine

// Callbacks receive engine notifications. Any of them may be nil.
//
// Callbacks run on the goroutine that caused the change: the caller of an
// engine operation, the synchronizer, or a host goroutine reporting an
// ended or failed stream. They are never invoked while the engine holds
// its lock, so they may call back into the engine.
type Callbacks struct {
	OnTimeUpdate      func(seconds float64)
	OnPlayStateChange func(playing bool)
	OnError           func(err error)
}

// outbox collects notifications while the engine lock is held.
type outbox []func(Callbacks)

func (o *outbox) time(seconds float64) {
	*o = append(*o, func(cb Callbacks) {
		if cb.OnTimeUpdate != nil {
			cb.OnTimeUpdate(seconds)
		}
	})
}

func (o *outbox) playState(playing bool) {
	*o = append(*o, func(cb Callbacks) {
		if cb.OnPlayStateChange != nil {
			cb.OnPlayStateChange(playing)
		}
	})
}

func (o *outbox) err(err error) {
	*o = append(*o, func(cb Callbacks) {
		if cb.OnError != nil {
			cb.OnError(err)
		}
	})
}

func (e *Engine) deliver(o outbox) {
	for _, fn := range o {
		fn(e.callbacks)
	}
}
