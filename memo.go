package anubis

import "sync"

// memoEntry holds the once-computed result for one cache key. Using
// sync.Once rather than a plain stored value+bool means a second caller
// racing the first blocks until the first's computation finishes, instead
// of triggering a redundant duplicate computation (spec §3.6: "Results are
// stored as result of shared-owned value").
type memoEntry[T any] struct {
	once sync.Once
	val  T
	err  error
}

// memoize implements the atomic "insert only if vacant, otherwise return
// the existing (possibly still-computing) entry's eventual result"
// pattern every Orchestrator cache needs (spec §4.3, §5's
// entry().or_insert_with() requirement).
func memoize[K comparable, T any](m *sync.Map, key K, compute func() (T, error)) (T, error) {
	actual, _ := m.LoadOrStore(key, &memoEntry[T]{})
	e := actual.(*memoEntry[T])
	e.once.Do(func() {
		e.val, e.err = compute()
	})
	return e.val, e.err
}
