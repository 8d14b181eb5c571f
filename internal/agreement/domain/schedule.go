package agreement

import "time"

// Due is one payment period of the lease.
type Due struct {
	Index int        `json:"index"`
	Month time.Month `json:"month"`
	Year  int        `json:"year"`
	Paid  bool       `json:"paid"`
}

// Schedule lists every due period from the start month. Payments are
// applied in order, so the first duration-remainingPayments periods are paid.
func (r *Record) Schedule() []Due {
	paid := int(r.duration - r.remainingPayments)
	dues := make([]Due, 0, r.duration)
	month := int(r.startMonth) - 1
	year := int(r.startYear)
	for i := 0; i < int(r.duration); i++ {
		dues = append(dues, Due{
			Index: i + 1,
			Month: time.Month(month%12 + 1),
			Year:  year + month/12,
			Paid:  i < paid,
		})
		month++
	}
	return dues
}
