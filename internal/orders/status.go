package orders

import "strings"

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusPaid       Status = "PAID"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCanceled   Status = "CANCELED"
)

var allStatuses = []Status{
	StatusPending, StatusProcessing, StatusPaid, StatusShipped, StatusDelivered, StatusCanceled,
}

// Transisi yang boleh dilakukan oleh reconciler. Admin override tidak lewat tabel ini.
// Status tanpa entri (PAID, CANCELED, SHIPPED, DELIVERED) tidak punya jalan keluar.
var validNext = map[Status]map[Status]bool{
	StatusPending:    {StatusPaid: true, StatusProcessing: true, StatusCanceled: true},
	StatusProcessing: {StatusPaid: true, StatusCanceled: true},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Terminal reports whether no gateway notification may move the order any more.
// Fulfilment states count too: they are only reachable after payment.
func (s Status) Terminal() bool {
	return len(validNext[s]) == 0
}

func (s Status) Valid() bool {
	for _, v := range allStatuses {
		if v == s {
			return true
		}
	}
	return false
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", ErrInvalidStatus
	}
	return st, nil
}
