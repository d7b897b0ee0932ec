package env

// DefaultBrowserMatrix returns the desktop browser lanes run by default.
func DefaultBrowserMatrix() *Matrix {
	return NewMatrix(BrowserMode,
		Pairs(PlatformName, "Windows 10", BrowserName, "chrome", BrowserVersion, "latest"),
		Pairs(PlatformName, "Windows 10", BrowserName, "firefox", BrowserVersion, "70.0"),
		Pairs(PlatformName, "macOS 10.14", BrowserName, "safari", BrowserVersion, "12.0"),
	)
}

// DefaultDeviceMatrix returns the mobile device lanes run by default.
func DefaultDeviceMatrix() *Matrix {
	return NewMatrix(DeviceMode,
		Pairs(DeviceName, "iPhone XS Simulator", PlatformName, "iOS", PlatformVersion, "13.0", BrowserName, "Safari"),
		Pairs(DeviceName, "Samsung Galaxy Tab S3 GoogleAPI Emulator", PlatformName, "Android", PlatformVersion, "8.1", BrowserName, "Chrome"),
		Pairs(DeviceName, "Samsung Galaxy S7 Edge WQHD GoogleAPI Emulator", PlatformName, "Android", PlatformVersion, "8.0", BrowserName, "Chrome"),
	)
}
