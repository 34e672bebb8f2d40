package appointment

import "time"

// clinicDays is the length of the calendar week: Monday through Saturday.
const clinicDays = 6

type WeekWindow struct {
	Start time.Time // Monday 00:00 in the clinic zone
	End   time.Time // Saturday 23:59:59.999999999 in the clinic zone
}

type WeeklyCalendar struct {
	Window       WeekWindow
	Appointments []Appointment
}

// WeekWindowFor returns the Monday to Saturday window containing anchor, or the
// current week when anchor is nil. Sunday belongs to the week that ends on it.
//
// An explicit anchor also snaps back to its Monday rather than opening a
// window on the anchor day itself, so the front desk always sees whole clinic
// weeks. This is a product decision; callers wanting a rolling six-day window
// must compute it themselves.
func WeekWindowFor(anchor *time.Time, now time.Time, loc *time.Location) WeekWindow {
	ref := now
	if anchor != nil {
		ref = *anchor
	}
	day := startOfDay(ref.In(loc))

	// time.Weekday counts from Sunday = 0.
	offset := (int(day.Weekday()) + 6) % 7
	monday := day.AddDate(0, 0, -offset)

	return WeekWindow{
		Start: monday,
		End:   monday.AddDate(0, 0, clinicDays).Add(-time.Nanosecond),
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
