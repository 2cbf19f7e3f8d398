package model

// AlcoholLevel is the result of a breath test taken at the gate.
type AlcoholLevel string

// Alcohol test results.
const (
	AlcoholLow  AlcoholLevel = "low"
	AlcoholHigh AlcoholLevel = "high"
)

// WaitInForm is everything captured when a vehicle registers on arrival.
// ArrivalDate and ArrivalTime are the values shown on the form; the record's
// canonical timestamps are taken when the entry is added.
type WaitInForm struct {
	VehicleNumber     string        `json:"vehicleNumber"`
	Category          string        `json:"category"`
	ArrivalDate       string        `json:"arrivalDate"`
	ArrivalTime       string        `json:"arrivalTime"`
	DriverName        string        `json:"driverName"`
	DriverPhone       string        `json:"driverPhone"`
	DriverTown        string        `json:"driverTown"`
	DriverLicense     string        `json:"driverLicense"`
	DriverAlcoholTest AlcoholLevel  `json:"driverAlcoholTest"`
	HelperName        string        `json:"helperName"`
	HelperIdentity    string        `json:"helperIdentity"`
	HelperPhone       string        `json:"helperPhone"`
	HelperTown        string        `json:"helperTown"`
	HelperAlcoholTest AlcoholLevel  `json:"helperAlcoholTest"`
	DriverPPENumber   string        `json:"driverPPENumber"`
	HelperPPENumber   string        `json:"helperPPENumber"`
	DeliveryTable     DeliveryTable `json:"deliveryTable"`
	VehicleInsurance  bool          `json:"vehicleInsurance"`
}

// WaitOutForm is captured when a vehicle leaves and its deliveries are reconciled.
type WaitOutForm struct {
	DepartureTime string        `json:"departureTime"`
	TotalIssue    string        `json:"totalIssue"`
	Notes         string        `json:"notes"`
	DeliveryTable DeliveryTable `json:"deliveryTable"`
}
