package main

// Driver enumerates and opens flash devices.
type Driver interface {
	ListDevices() ([]Device, error)
	Open(dev Device) (Operation, error)
}

// Operation is an open device. Offsets and sizes are in 512-byte sectors.
// Calls block until the device finishes or fails; there are no timeouts.
type Operation interface {
	LoadPartitions() ([]RawPartition, error)
	// BackupPartition copies the range into filename.
	BackupPartition(offset, size uint64, filename string, verify bool) error
	ErasePartition(offset, size uint64) error
	// FlashImageFile writes filename into the range. The image must fit.
	FlashImageFile(offset, size uint64, filename string, verify bool) error
	// CompareWithFile returns the number of mismatching sectors.
	CompareWithFile(offset, size uint64, filename string) (int, error)
	Reboot() error
	Close() error
}
