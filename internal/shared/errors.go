package shared

import "errors"

// ErrLockHeld occurs when another caller owns a document lock.
var ErrLockHeld = errors.New("lock held by another caller")
