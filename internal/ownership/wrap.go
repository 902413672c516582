package ownership

import (
	"github.com/sigil-lang/sigil/internal/value"
)

// Wrap applies an ownership qualifier to a freshly created value. Weak and
// Own cannot be entered through here: a weak handle only exists by
// downgrading a shared one, and #own needs a release callback (WrapOwn).
func (s *Store) Wrap(v value.Value, kind Kind) (Owned, *value.Error) {
	switch kind {
	case KindUnique:
		return s.WrapUnique(v), nil
	case KindShared:
		return s.WrapShared(v, nil), nil
	case KindSync:
		return s.WrapSync(v), nil
	case KindWeak:
		return nil, value.NewError(value.BorrowViolation,
			"#weak binding requires a shared value to downgrade")
	case KindOwn:
		return nil, value.NewError(value.BorrowViolation,
			"#own binding requires a release callback")
	}
	return nil, value.NewError(value.BorrowViolation, "unknown ownership qualifier")
}
