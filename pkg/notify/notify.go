package notify

import (
	"github.com/uplook/uplook/pkg/types"
)

// ShouldNotify reports whether a result should trigger an email given the
// previous result for the same monitor. The first observation notifies only
// when unhealthy; after that, only status transitions notify.
func ShouldNotify(current, previous *types.Result) bool {
	if current == nil {
		return false
	}
	if previous == nil {
		return current.Status == types.StatusUnhealthy
	}
	return current.Status != previous.Status
}
