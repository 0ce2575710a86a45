package interfaces

// AvailabilitySource is the host event stream reporting whether the wrapped
// interactive is ready for sharing
type AvailabilitySource interface {
	// OnAvailabilityChange registers handler and returns a function removing it
	OnAvailabilityChange(handler func(available bool)) CancelFunc
}
