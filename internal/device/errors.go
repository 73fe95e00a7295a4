package device

import "errors"

// Fault taxonomy of the device runtime.
//
// Step faults are logged with the device id and step name and never stop
// the loop. They can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrConfig) {
//	    // rejected command or unwritable store
//	}
var (
	// ErrAcquisition is a hardware read or apply failure.
	ErrAcquisition = errors.New("device: acquisition fault")

	// ErrPersistence is a telemetry storage failure.
	ErrPersistence = errors.New("device: persistence fault")

	// ErrPublish is a transport failure while publishing.
	ErrPublish = errors.New("device: publish fault")

	// ErrDecode is a command payload that is not a JSON object.
	ErrDecode = errors.New("device: decode fault")

	// ErrConfig is an invalid setting or an unreadable/unwritable store.
	ErrConfig = errors.New("device: config fault")

	// ErrInvalidIdentity is returned when a device id or key cannot be
	// used in topics, store keys and table names.
	ErrInvalidIdentity = errors.New("device: invalid identity")
)
