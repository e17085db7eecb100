package permission

// MaxPermissions is the number of distinct permissions a [Registry] can hold.
const MaxPermissions = 64

// Mask64 is a set of permission bits.
type Mask64 uint64

// Has reports whether bit is set. Out-of-range bits are never set.
func (m Mask64) Has(bit int) bool {
	if bit < 0 || bit >= MaxPermissions {
		return false
	}
	return m&(1<<bit) != 0
}

// Set adds bit to the mask. Out-of-range bits are ignored.
func (m *Mask64) Set(bit int) {
	if bit < 0 || bit >= MaxPermissions {
		return
	}
	*m |= 1 << bit
}

// Clear removes bit from the mask.
func (m *Mask64) Clear(bit int) {
	if bit < 0 || bit >= MaxPermissions {
		return
	}
	*m &^= 1 << bit
}

func (m Mask64) Raw() uint64 {
	return uint64(m)
}
