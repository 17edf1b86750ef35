package pool

// fixed is a bounded pool of T: it constructs at most capacity values via
// newFn and recycles whatever Put returns. Generalized from the teacher's
// interface{}-typed pool to a type parameter, since this module's only
// caller needs a concrete hash.Hash element, not a boxed any requiring a
// type assertion on every Get.
type fixed[T any] struct {
	available chan T
	all       chan T
	buf       chan T
	newFn     func() T
}

// NewFixed builds a Pool[T] that creates at most capacity values of T via
// newFn, reusing whatever Put returns. Grounded on the teacher's
// pool.NewFixed.
func NewFixed[T any](capacity uint, newFn func() T) Pool[T] {
	return &fixed[T]{
		available: make(chan T, capacity),
		all:       make(chan T, capacity),
		buf:       make(chan T, 1024),
		newFn:     newFn,
	}
}

func (p *fixed[T]) Get() T {
	select {
	case el := <-p.available:
		return el

	case el := <-p.buf:
		return el

	default:
		var el T

		select {
		case el = <-p.available:
		case el = <-p.buf:
		case p.all <- el:
			el = p.newFn()
		}
		return el
	}
}

func (p *fixed[T]) Put(el T) {
	select {
	case p.available <- el:
	case p.buf <- el:
	default:
	}
}
