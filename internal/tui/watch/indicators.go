package watch

import (
	"strings"
	"time"
)

const (
	activityDots = 5
	activityStep = 2 * time.Second
)

// Activity shows recent surface traffic as a row of dots that fade one per
// activityStep after the last event.
type Activity struct {
	lastEvent time.Time
}

func (a *Activity) OnEvent(at time.Time) {
	a.lastEvent = at
}

func (a Activity) LastEvent() time.Time {
	return a.lastEvent
}

// Lit returns how many dots are lit at now.
func (a Activity) Lit(now time.Time) int {
	if a.lastEvent.IsZero() {
		return 0
	}
	faded := int(now.Sub(a.lastEvent) / activityStep)
	return max(activityDots-faded, 0)
}

func (a Activity) Render(theme Theme, now time.Time) string {
	lit := a.Lit(now)
	var b strings.Builder
	for i := range activityDots {
		if i < lit {
			b.WriteString(theme.ActivityOn.Render("●"))
		} else {
			b.WriteString(theme.ActivityOff.Render("○"))
		}
	}
	return b.String()
}
