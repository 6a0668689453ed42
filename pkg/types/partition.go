package types

import "fmt"

// Partition is one of the two interchangeable physical copies of a
// real-time index.
type Partition uint8

const (
	Partition0 Partition = 0
	Partition1 Partition = 1
)

// AllPartitions lists both partitions in write order.
var AllPartitions = []Partition{Partition0, Partition1}

// Valid reports whether p names an existing partition.
func (p Partition) Valid() bool {
	return p == Partition0 || p == Partition1
}

// Other returns the partition that is not p.
func (p Partition) Other() Partition {
	if p == Partition0 {
		return Partition1
	}
	return Partition0
}

func (p Partition) String() string {
	return fmt.Sprintf("%d", uint8(p))
}
