package jobs

type JobType string

const (
	JobParcelStatusChanged JobType = "parcel.status_changed"
	JobPaymentReceipt      JobType = "payment.receipt"
)

// IsValid reports whether t is a known job type.
func (t JobType) IsValid() bool {
	switch t {
	case JobParcelStatusChanged, JobPaymentReceipt:
		return true
	default:
		return false
	}
}

func (t JobType) String() string { return string(t) }
