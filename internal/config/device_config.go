package config

import "time"

// DeviceConfig covers the device authorization flow: where the user is sent
// to enter the user code, how long codes live, and how often a device may
// poll the token endpoint.
type DeviceConfig interface {
	GetVerificationURI() string
	GetDeviceCodeLifetime() time.Duration
	GetDevicePollInterval() time.Duration
}

type Device struct{}

var _ DeviceConfig = Device{}

func (Device) GetVerificationURI() string {
	return GetEnv("DEVICE_VERIFICATION_URI", "https://localhost:8443/device")
}

func (Device) GetDeviceCodeLifetime() time.Duration {
	return durationEnv("DEVICE_CODE_LIFETIME", 10*time.Minute)
}

func (Device) GetDevicePollInterval() time.Duration {
	return durationEnv("DEVICE_POLL_INTERVAL", 5*time.Second)
}
