// Package lazy implements deferred, memoized field values.
//
// A Lazy wraps a producer that runs at most once, the first time the value is
// forced. Producers may return another Lazy; forcing unwraps nested lazies
// until a plain value, an error or a skip is reached. Results are modelled as
// a three-way union (value, error, skip) rather than by overloading the
// value channel with error objects.
package lazy

import "sync"

// Kind discriminates a Result.
type Kind uint8

const (
	// KindValue is a successfully produced value (possibly nil).
	KindValue Kind = iota
	// KindError carries the error the producer failed with.
	KindError
	// KindSkip marks a field that intentionally contributes no value.
	KindSkip
)

func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindError:
		return "error"
	case KindSkip:
		return "skip"
	}
	return "unknown"
}

// Result is the outcome of forcing a Lazy.
type Result struct {
	kind  Kind
	value any
	err   error
}

// Ok returns a value result. A *Lazy value is unwrapped when forced.
func Ok(v any) Result { return Result{kind: KindValue, value: v} }

// Fail returns an error result.
func Fail(err error) Result { return Result{kind: KindError, err: err} }

// Skip returns the skip result.
func Skip() Result { return Result{kind: KindSkip} }

func (r Result) Kind() Kind { return r.kind }
func (r Result) Value() any { return r.value }
func (r Result) Err() error { return r.err }

// Skipped reports whether r is the skip result.
func (r Result) Skipped() bool { return r.kind == KindSkip }

type state uint8

const (
	pending state = iota
	running
	done
)

// Lazy is a deferred computation evaluated at most once.
type Lazy struct {
	mu       sync.Mutex
	state    state
	wait     chan struct{}
	producer func() Result
	result   Result
}

// New wraps a producer returning a value or an error.
func New(producer func() (any, error)) *Lazy {
	return NewResult(func() Result {
		v, err := producer()
		if err != nil {
			return Fail(err)
		}
		return Ok(v)
	})
}

// NewResult wraps a producer returning a full Result, which lets it skip.
func NewResult(producer func() Result) *Lazy {
	return &Lazy{producer: producer}
}

// Resolved returns an already resolved Lazy holding v. A *Lazy v is
// returned as is.
func Resolved(v any) *Lazy {
	if l, ok := v.(*Lazy); ok {
		return l
	}
	return &Lazy{state: done, result: Ok(v)}
}

// Is reports whether v is a *Lazy.
func Is(v any) bool {
	_, ok := v.(*Lazy)
	return ok
}

// Resolve forces the value. The producer runs once; callers arriving while
// it runs wait for its result. A producer must not force its own Lazy.
func (l *Lazy) Resolve() Result {
	l.mu.Lock()
	switch l.state {
	case done:
		l.mu.Unlock()
		return l.result
	case running:
		wait := l.wait
		l.mu.Unlock()
		<-wait
		return l.result
	}
	l.state = running
	l.wait = make(chan struct{})
	producer := l.producer
	l.mu.Unlock()

	r := producer()
	for r.kind == KindValue {
		nested, ok := r.value.(*Lazy)
		if !ok {
			break
		}
		r = nested.Resolve()
	}

	l.mu.Lock()
	l.result = r
	l.state = done
	l.producer = nil
	close(l.wait)
	l.mu.Unlock()
	return r
}

// Value forces the value and returns it, or the producer's error. A skipped
// result yields (nil, nil); use Resolve to tell it apart from null.
func (l *Lazy) Value() (any, error) {
	r := l.Resolve()
	if r.kind == KindError {
		return nil, r.err
	}
	return r.value, nil
}

// Then returns a Lazy that forces l and applies transform to its value.
// Errors and skips pass through without calling transform. The transform may
// return another *Lazy.
func (l *Lazy) Then(transform func(any) (any, error)) *Lazy {
	return NewResult(func() Result {
		r := l.Resolve()
		if r.kind != KindValue {
			return r
		}
		v, err := transform(r.value)
		if err != nil {
			return Fail(err)
		}
		return Ok(v)
	})
}

// ThenResult is Then for transforms that need to skip or fail explicitly.
func (l *Lazy) ThenResult(transform func(Result) Result) *Lazy {
	return NewResult(func() Result {
		return transform(l.Resolve())
	})
}

// All returns a Lazy whose value is items with every *Lazy member forced.
// Plain members pass through. The first error fails the whole list; skipped
// members become nil.
func All(items []any) *Lazy {
	return NewResult(func() Result {
		out := make([]any, len(items))
		for i, item := range items {
			l, ok := item.(*Lazy)
			if !ok {
				out[i] = item
				continue
			}
			r := l.Resolve()
			if r.kind == KindError {
				return r
			}
			out[i] = r.value
		}
		return Ok(out)
	})
}
