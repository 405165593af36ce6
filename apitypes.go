package dbus

// ObjectPath is a convenience alias applications may use when building
// arguments for FromRaw/Call instead of a plain string tagged "o".
type ObjectPath string
