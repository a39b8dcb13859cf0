package application

// Session resolution outcomes reported to an Observer.
const (
	SessionActive    = "active"
	SessionRefreshed = "refreshed"
	SessionExpired   = "expired"
	SessionMissing   = "missing"
)

// Check-in results reported to an Observer.
const (
	CheckInOK            = "ok"
	CheckInDuplicate     = "duplicate"
	CheckInNotInProgress = "not_in_progress"
	CheckInError         = "error"
)

// Observer receives counters from the services. The metrics package
// provides the Prometheus implementation.
type Observer interface {
	SessionResolved(outcome string)
	CheckInRecorded(result string)
}

type nopObserver struct{}

func (nopObserver) SessionResolved(string) {}
func (nopObserver) CheckInRecorded(string) {}

func defaultObserver(observer Observer) Observer {
	if observer == nil {
		return nopObserver{}
	}
	return observer
}
