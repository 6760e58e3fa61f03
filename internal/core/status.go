package core

// PaymentStatus buckets an entity by the share of periods it paid in a year.
type PaymentStatus int

const (
	NoPayment PaymentStatus = iota
	PaidVeryLittle
	PaidPartially
	PaidAlmostAll
	PaidAll
)

var paymentStatusLabels = [...]string{
	NoPayment:      "No Payment",
	PaidVeryLittle: "Paid Very Little",
	PaidPartially:  "Paid Partially",
	PaidAlmostAll:  "Paid Almost All",
	PaidAll:        "Paid All",
}

func (s PaymentStatus) String() string {
	if s < NoPayment || s > PaidAll {
		return "Unknown"
	}
	return paymentStatusLabels[s]
}

// MarshalText encodes the status by its label.
func (s PaymentStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// PaymentStatuses lists every bucket from worst to best.
func PaymentStatuses() []PaymentStatus {
	return []PaymentStatus{NoPayment, PaidVeryLittle, PaidPartially, PaidAlmostAll, PaidAll}
}

// paymentBands is evaluated top-down; the first band whose threshold the paid
// fraction reaches wins. Thresholds are kept as num/den so 0.3 and 0.8 compare
// exactly. NoPayment is handled before the table.
var paymentBands = []struct {
	num, den int
	status   PaymentStatus
}{
	{1, 1, PaidAll},
	{4, 5, PaidAlmostAll},
	{3, 10, PaidPartially},
	{0, 1, PaidVeryLittle},
}

// ClassifyCount classifies paid periods out of total. total <= 0 means no period
// was observed and yields NoPayment.
func ClassifyCount(paid, total int) PaymentStatus {
	if total <= 0 || paid <= 0 {
		return NoPayment
	}
	if paid > total {
		paid = total
	}
	for _, b := range paymentBands {
		if paid*b.den >= b.num*total {
			return b.status
		}
	}
	return PaidVeryLittle
}

// Classify buckets an entity from its per-period amounts. Invalid cells count as
// zero; only the number of positive entries matters.
func Classify(periods []Amount) PaymentStatus {
	return ClassifyCount(CountPositive(periods), len(periods))
}

// CountPositive returns how many amounts are strictly greater than zero.
func CountPositive(periods []Amount) int {
	n := 0
	for _, a := range periods {
		if a.Positive() {
			n++
		}
	}
	return n
}
