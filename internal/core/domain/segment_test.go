package domain_test

import (
	"testing"

	"github.com/olehbas/marshrut/internal/core/domain"
)

func TestSegmentsOverlap(t *testing.T) {
	cases := []struct {
		name                           string
		aOrigin, aDest, bOrigin, bDest int
		want                           bool
	}{
		{"identical", 1, 3, 1, 3, true},
		{"nested", 1, 5, 2, 3, true},
		{"partial left", 1, 3, 2, 5, true},
		{"partial right", 2, 5, 1, 3, true},
		{"touching at boundary", 1, 3, 3, 4, false},
		{"touching at boundary reversed", 3, 4, 1, 3, false},
		{"disjoint", 1, 2, 4, 6, false},
		{"one segment shared", 2, 3, 2, 3, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := domain.SegmentsOverlap(tc.aOrigin, tc.aDest, tc.bOrigin, tc.bDest)
			if got != tc.want {
				t.Errorf("SegmentsOverlap(%d,%d,%d,%d) = %v, want %v",
					tc.aOrigin, tc.aDest, tc.bOrigin, tc.bDest, got, tc.want)
			}
		})
	}
}

func unit(kind domain.UnitKind, state domain.UnitState, origin, dest int) domain.ReservationUnit {
	return domain.ReservationUnit{
		Kind:             kind,
		State:            state,
		OriginIndex:      origin,
		DestinationIndex: dest,
	}
}

func TestCountOverlapping(t *testing.T) {
	units := []domain.ReservationUnit{
		unit(domain.KindTicket, domain.StatePaid, 1, 3),
		unit(domain.KindTicket, domain.StateBookedUnpaid, 2, 4),
		unit(domain.KindTicket, domain.StateCancelled, 1, 4),
		unit(domain.KindPackage, domain.StatePaid, 1, 4),
		unit(domain.KindTicket, domain.StatePaid, 3, 4),
	}

	// [2, 3) overlaps the first two; the cancelled unit and the package
	// never count, and [3,4) only touches the boundary.
	if got := domain.CountOverlapping(units, domain.KindTicket, 2, 3); got != 2 {
		t.Errorf("CountOverlapping = %d, want 2", got)
	}
	if got := domain.CountOverlapping(units, domain.KindPackage, 2, 3); got != 1 {
		t.Errorf("package CountOverlapping = %d, want 1", got)
	}
}

func TestAvailableUnits(t *testing.T) {
	units := []domain.ReservationUnit{
		unit(domain.KindTicket, domain.StatePaid, 1, 3),
		unit(domain.KindTicket, domain.StateBookedUnpaid, 1, 3),
	}

	if got := domain.AvailableUnits(5, units, domain.KindTicket, 1, 3); got != 3 {
		t.Errorf("AvailableUnits = %d, want 3", got)
	}

	// A leg the existing units already left is fully free again.
	if got := domain.AvailableUnits(5, units, domain.KindTicket, 3, 4); got != 5 {
		t.Errorf("AvailableUnits on disjoint leg = %d, want 5", got)
	}

	// Never negative even if data oversold somehow.
	if got := domain.AvailableUnits(1, units, domain.KindTicket, 1, 3); got != 0 {
		t.Errorf("AvailableUnits clamped = %d, want 0", got)
	}
}
