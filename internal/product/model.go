package product

type Product struct {
	ID       string
	VendorID string
	Name     string
	// UnitPrice is in minor currency units.
	UnitPrice int64
	// IsLive is the vendor's manual availability override, used when the
	// product has no schedule.
	IsLive bool
}
