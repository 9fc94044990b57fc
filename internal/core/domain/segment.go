package domain

// SegmentsOverlap reports whether two half-open stop-index intervals
// [aOrigin, aDest) and [bOrigin, bDest) share at least one inter-stop
// segment. This test decides whether an existing reservation consumes
// capacity for a queried segment.
func SegmentsOverlap(aOrigin, aDest, bOrigin, bDest int) bool {
	return aOrigin < bDest && aDest > bOrigin
}

// CountOverlapping counts non-cancelled units of the given kind whose
// occupied segment overlaps [origin, dest).
func CountOverlapping(units []ReservationUnit, kind UnitKind, origin, dest int) int {
	n := 0
	for i := range units {
		u := &units[i]
		if u.Kind != kind || !u.Active() {
			continue
		}
		if SegmentsOverlap(u.OriginIndex, u.DestinationIndex, origin, dest) {
			n++
		}
	}
	return n
}

// AvailableUnits returns the free unit count for a segment, never negative.
func AvailableUnits(capacity int, units []ReservationUnit, kind UnitKind, origin, dest int) int {
	free := capacity - CountOverlapping(units, kind, origin, dest)
	if free < 0 {
		return 0
	}
	return free
}
