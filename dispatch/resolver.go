package dispatch

import "linehaul/store"

// Assignment is the driver, truck and sub-unit of a dispatch event.
type Assignment struct {
	DriverID  *int64  `json:"driver_id"`
	TruckID   *string `json:"truck_id"`
	SubUnitID *string `json:"sub_unit_id"`
}

// ResolveAssignment merges explicit input over an active substitution over
// route defaults, field by field. Sub-unit has no route default. sub may be nil.
func ResolveAssignment(route *store.Route, sub *store.RouteSubstitution, explicit Assignment) Assignment {
	var subDriver *int64
	var subTruck, subUnit *string
	if sub != nil {
		subDriver, subTruck, subUnit = sub.DriverID, sub.TruckNumber, sub.SubUnitNumber
	}
	return Assignment{
		DriverID:  first(explicit.DriverID, subDriver, route.DefaultDriverID),
		TruckID:   first(explicit.TruckID, subTruck, route.TruckNumber),
		SubUnitID: first(explicit.SubUnitID, subUnit),
	}
}

func first[T any](vals ...*T) *T {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
