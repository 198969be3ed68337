package statsd

// Atom ids, which are also the field numbers of the Atom message.
const (
	AtomAppBreadcrumbReported           = 47
	AtomConnectivityStateChanged        = 98
	AtomDeviceCalculatedPowerUse        = 10039
	AtomDeviceCalculatedPowerBlameUID   = 10040
	AtomDeviceCalculatedPowerBlameOther = 10041
)

// AppBreadcrumbReported.label
const appBreadcrumbLabelField = 2

// BreadcrumbState is AppBreadcrumbReported.State.
type BreadcrumbState int

const (
	BreadcrumbUnknown BreadcrumbState = iota
	BreadcrumbStopped
	BreadcrumbStarted
)

// DeviceCalculatedPowerUse is the device-wide power estimate statsd pulls
// from BatteryStats' power calculator.
type DeviceCalculatedPowerUse struct {
	ComputedPowerMilliAmpHours float32 `json:"computedPowerMilliAmpHours"`
}

// DeviceCalculatedPowerBlameUID is the power estimate attributed to one uid.
type DeviceCalculatedPowerBlameUID struct {
	UID                int32   `json:"uid"`
	PowerMilliAmpHours float32 `json:"powerMilliAmpHours"`
}

// Atom is one gauge sample. Only the atoms the validations read are decoded;
// the rest keep just their id.
type Atom struct {
	ID            int32                          `json:"id"`
	PowerUse      *DeviceCalculatedPowerUse      `json:"powerUse,omitempty"`
	PowerBlameUID *DeviceCalculatedPowerBlameUID `json:"powerBlameUid,omitempty"`
}
