package timesheet

// DefaultRange is the window injected into days without a complete range.
var DefaultRange = TimeRange{Start: "09:00", End: "17:00"}

// AutoFill completes the week's ranges with def and derives every project's
// hours from them. Weekend days stay unset unless weekendPermission is true.
// The inputs are not modified.
func AutoFill(ranges map[string]TimeRange, week Week, projects []ProjectRef, weekendPermission bool, def TimeRange) (map[string]TimeRange, map[string]map[string]float64, error) {
	if _, err := def.Hours(); err != nil {
		return nil, nil, err
	}

	newRanges := make(map[string]TimeRange, len(ranges)+len(week.Days))
	for k, v := range ranges {
		newRanges[k] = v
	}

	dayHours := make(map[string]float64, len(week.Days))
	for _, key := range week.Keys() {
		r := newRanges[key]
		if !r.Complete() {
			r = def
			newRanges[key] = r
		}
		h, err := r.Hours()
		if err != nil {
			return nil, nil, err
		}
		dayHours[key] = h
	}

	newEntries := make(map[string]map[string]float64, len(projects))
	for _, p := range projects {
		day := make(map[string]float64, len(week.Days))
		for _, key := range week.Keys() {
			if IsWeekend(key) && !weekendPermission {
				continue
			}
			day[key] = dayHours[key]
		}
		newEntries[p.ID] = day
	}
	return newRanges, newEntries, nil
}
