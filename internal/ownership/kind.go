package ownership

// Kind is the ownership qualifier of a binding. The set is closed.
type Kind uint8

const (
	// KindUnique is ~T: exactly one live owner, transfer by move.
	KindUnique Kind = iota
	// KindShared is @T: reference-counted shared storage.
	KindShared
	// KindWeak is #weak: a non-owning observer of shared storage.
	KindWeak
	// KindSync is #sync: serialized mutable access.
	KindSync
	// KindOwn is #own: a resource with a guaranteed-once release.
	KindOwn
)

func (k Kind) String() string {
	switch k {
	case KindUnique:
		return "~"
	case KindShared:
		return "@"
	case KindWeak:
		return "#weak"
	case KindSync:
		return "#sync"
	case KindOwn:
		return "#own"
	default:
		return "?"
	}
}

// Owned is any ownership wrapper. Drop is idempotent deregistration driven by
// the evaluator's scope-exit tracking, not destructor chaining.
type Owned interface {
	Kind() Kind
	Drop()
}

// Scope collects the owned handles bound in one lexical scope and drops them
// in reverse binding order on exit.
type Scope struct {
	owned []Owned
}

func (s *Scope) Track(o Owned) {
	s.owned = append(s.owned, o)
}

func (s *Scope) Exit() {
	for i := len(s.owned) - 1; i >= 0; i-- {
		s.owned[i].Drop()
	}
	s.owned = nil
}
