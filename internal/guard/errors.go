package guard

import "errors"

var (
	// ErrNothingMutated: нужно было изменить записи, но ни одна не изменилась.
	ErrNothingMutated = errors.New("no matching record could be unblocked")

	// ErrScan: поиск существующих записей не удался.
	ErrScan = errors.New("existing record scan failed")
)
