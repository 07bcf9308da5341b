package actions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

func newCalendarService(ctx context.Context, accessToken string) (*calendar.Service, error) {
	svc, err := calendar.NewService(ctx, option.WithTokenSource(
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar client: %w", err)
	}
	return svc, nil
}

func (r *Registry) registerCalendarActions() {
	r.register(Action{
		Name:       "scheduleMeeting",
		Capability: CapabilityCalendar,
		Execute:    r.execScheduleMeeting,
		Narrate: func(p Params) Narration {
			return Narration{
				Intro:    fmt.Sprintf("I'll schedule %q on your calendar.", p.String("title")),
				Progress: "Creating the event and sending invites...",
			}
		},
	})

	r.register(Action{
		Name:       "getUpcomingEvents",
		Capability: CapabilityCalendar,
		Execute:    execGetUpcomingEvents,
		Narrate: func(p Params) Narration {
			return Narration{
				Intro:    "I'll look at your upcoming schedule.",
				Progress: "Fetching your calendar events...",
			}
		},
	})

	r.register(Action{
		Name:       "getEvent",
		Capability: CapabilityCalendar,
		Execute:    execGetEvent,
		Narrate: func(p Params) Narration {
			return Narration{
				Intro:    "I'll pull up that event.",
				Progress: "Loading the event details...",
			}
		},
	})

	r.register(Action{
		Name:       "updateEvent",
		Capability: CapabilityCalendar,
		Execute:    r.execUpdateEvent,
		Narrate: func(p Params) Narration {
			return Narration{
				Intro:    "I'll update that event for you.",
				Progress: "Applying the changes and notifying attendees...",
			}
		},
	})

	r.register(Action{
		Name:       "deleteEvent",
		Capability: CapabilityCalendar,
		Execute:    execDeleteEvent,
		Narrate: func(p Params) Narration {
			return Narration{
				Intro:    "I'll cancel that event.",
				Progress: "Removing the event from your calendar...",
			}
		},
	})

	r.register(Action{
		Name:       "searchEvents",
		Capability: CapabilityCalendar,
		Execute:    execSearchEvents,
		Narrate: func(p Params) Narration {
			return Narration{
				Intro:    fmt.Sprintf("I'll search your calendar for %q.", p.String("query")),
				Progress: "Searching events...",
			}
		},
	})

	r.register(Action{
		Name:       "findFreeTimeSlots",
		Capability: CapabilityCalendar,
		Execute:    execFindFreeTimeSlots,
		Narrate: func(p Params) Narration {
			return Narration{
				Intro:    "I'll find open slots in your schedule.",
				Progress: "Checking free/busy information...",
			}
		},
	})

	r.register(Action{
		Name:       "createRecurringEvent",
		Capability: CapabilityCalendar,
		Execute:    r.execCreateRecurringEvent,
		Narrate: func(p Params) Narration {
			return Narration{
				Intro:    fmt.Sprintf("I'll set up the recurring event %q.", p.String("title")),
				Progress: "Creating the series and sending invites...",
			}
		},
	})

	r.register(Action{
		Name:       "getCalendarList",
		Capability: CapabilityCalendar,
		Execute:    execGetCalendarList,
		Narrate: func(p Params) Narration {
			return Narration{
				Intro:    "I'll list the calendars on your account.",
				Progress: "Fetching your calendar list...",
			}
		},
	})

	r.register(Action{
		Name:       "checkEventConflicts",
		Capability: CapabilityCalendar,
		Execute:    execCheckEventConflicts,
		Narrate: func(p Params) Narration {
			return Narration{
				Intro:    "I'll check that time for conflicts.",
				Progress: "Comparing against your existing events...",
			}
		},
	})
}

// execScheduleMeeting creates a calendar event with a Meet link and
// invites for every attendee.
func (r *Registry) execScheduleMeeting(ctx context.Context, accessToken string, params Params, organizer Organizer) (string, error) {
	if err := params.require("scheduleMeeting", "title", "start", "end"); err != nil {
		return "", err
	}

	svc, err := newCalendarService(ctx, accessToken)
	if err != nil {
		return "", err
	}

	event := r.buildEvent(params, organizer)
	event.ConferenceData = &calendar.ConferenceData{
		CreateRequest: &calendar.CreateConferenceRequest{
			RequestId: fmt.Sprintf("meet-%d", time.Now().UnixNano()),
		},
	}

	created, err := svc.Events.Insert("primary", event).
		ConferenceDataVersion(1).SendUpdates("all").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to schedule meeting: %w", err)
	}

	result := fmt.Sprintf("Scheduled %q from %s to %s (event id %s).",
		params.String("title"), params.String("start"), params.String("end"), created.Id)
	if created.HangoutLink != "" {
		result += fmt.Sprintf(" Meet link: %s", created.HangoutLink)
	}
	if attendees := params.StringSlice("attendees"); len(attendees) > 0 {
		result += fmt.Sprintf(" Invites sent to %s.", strings.Join(attendees, ", "))
	}
	return result, nil
}

// execCreateRecurringEvent is scheduleMeeting plus an RRULE series.
func (r *Registry) execCreateRecurringEvent(ctx context.Context, accessToken string, params Params, organizer Organizer) (string, error) {
	if err := params.require("createRecurringEvent", "title", "start", "end"); err != nil {
		return "", err
	}
	recurrence := params.StringSlice("recurrence")
	if len(recurrence) == 0 {
		return "", fmt.Errorf("createRecurringEvent requires a non-empty \"recurrence\" parameter")
	}

	svc, err := newCalendarService(ctx, accessToken)
	if err != nil {
		return "", err
	}

	event := r.buildEvent(params, organizer)
	event.Recurrence = recurrence
	event.ConferenceData = &calendar.ConferenceData{
		CreateRequest: &calendar.CreateConferenceRequest{
			RequestId: fmt.Sprintf("meet-%d", time.Now().UnixNano()),
		},
	}

	created, err := svc.Events.Insert("primary", event).
		ConferenceDataVersion(1).SendUpdates("all").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create recurring event: %w", err)
	}

	result := fmt.Sprintf("Created recurring event %q (event id %s, rule %s).",
		params.String("title"), created.Id, strings.Join(recurrence, "; "))
	if created.HangoutLink != "" {
		result += fmt.Sprintf(" Meet link: %s", created.HangoutLink)
	}
	return result, nil
}

// buildEvent assembles the shared event shape for create calls.
func (r *Registry) buildEvent(params Params, organizer Organizer) *calendar.Event {
	attendees := params.StringSlice("attendees")
	eventAttendees := make([]*calendar.EventAttendee, 0, len(attendees))
	for _, email := range attendees {
		eventAttendees = append(eventAttendees, &calendar.EventAttendee{Email: email})
	}

	return &calendar.Event{
		Summary:     params.String("title"),
		Description: params.String("description"),
		Start:       &calendar.EventDateTime{DateTime: params.String("start"), TimeZone: r.timeZone},
		End:         &calendar.EventDateTime{DateTime: params.String("end"), TimeZone: r.timeZone},
		Attendees:   eventAttendees,
		Organizer: &calendar.EventOrganizer{
			Email:       organizer.Email,
			DisplayName: organizer.DisplayName,
		},
	}
}

// execGetUpcomingEvents lists events in the requested window,
// defaulting to the next 30 days.
func execGetUpcomingEvents(ctx context.Context, accessToken string, params Params, _ Organizer) (string, error) {
	svc, err := newCalendarService(ctx, accessToken)
	if err != nil {
		return "", err
	}

	now := time.Now()
	timeMin := params.String("timeMin")
	if timeMin == "" {
		timeMin = now.Format(time.RFC3339)
	}
	timeMax := params.String("timeMax")
	if timeMax == "" {
		timeMax = now.AddDate(0, 0, 30).Format(time.RFC3339)
	}

	list, err := svc.Events.List("primary").
		TimeMin(timeMin).TimeMax(timeMax).
		MaxResults(int64(params.Int("maxResults", 10))).
		SingleEvents(true).OrderBy("startTime").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to get upcoming events: %w", err)
	}

	if len(list.Items) == 0 {
		return "No upcoming events in the requested window.", nil
	}
	return formatEventList("Upcoming events", list.Items), nil
}

// execGetEvent loads a single event by id.
func execGetEvent(ctx context.Context, accessToken string, params Params, _ Organizer) (string, error) {
	if err := params.require("getEvent", "eventId"); err != nil {
		return "", err
	}

	svc, err := newCalendarService(ctx, accessToken)
	if err != nil {
		return "", err
	}

	event, err := svc.Events.Get("primary", params.String("eventId")).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to get event: %w", err)
	}

	return formatEventList("Event details", []*calendar.Event{event}), nil
}

// execUpdateEvent merges the provided fields into the current event, so
// unspecified fields survive the update.
func (r *Registry) execUpdateEvent(ctx context.Context, accessToken string, params Params, _ Organizer) (string, error) {
	if err := params.require("updateEvent", "eventId"); err != nil {
		return "", err
	}

	svc, err := newCalendarService(ctx, accessToken)
	if err != nil {
		return "", err
	}

	eventID := params.String("eventId")
	event, err := svc.Events.Get("primary", eventID).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to load event for update: %w", err)
	}

	var changes []string
	if title := params.String("title"); title != "" {
		event.Summary = title
		changes = append(changes, "title")
	}
	if description := params.String("description"); description != "" {
		event.Description = description
		changes = append(changes, "description")
	}
	if start := params.String("start"); start != "" {
		event.Start = &calendar.EventDateTime{DateTime: start, TimeZone: r.timeZone}
		changes = append(changes, "start")
	}
	if end := params.String("end"); end != "" {
		event.End = &calendar.EventDateTime{DateTime: end, TimeZone: r.timeZone}
		changes = append(changes, "end")
	}
	if location := params.String("location"); location != "" {
		event.Location = location
		changes = append(changes, "location")
	}
	if attendees := params.StringSlice("attendees"); len(attendees) > 0 {
		eventAttendees := make([]*calendar.EventAttendee, 0, len(attendees))
		for _, email := range attendees {
			eventAttendees = append(eventAttendees, &calendar.EventAttendee{Email: email})
		}
		event.Attendees = eventAttendees
		changes = append(changes, "attendees")
	}

	if len(changes) == 0 {
		return "", fmt.Errorf("updateEvent requires at least one field to change")
	}

	updated, err := svc.Events.Update("primary", eventID, event).
		SendUpdates("all").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to update event: %w", err)
	}

	return fmt.Sprintf("Updated %s of event %q (id %s); attendees were notified.",
		strings.Join(changes, ", "), updated.Summary, updated.Id), nil
}

// execDeleteEvent removes the event, notifying attendees unless asked
// not to.
func execDeleteEvent(ctx context.Context, accessToken string, params Params, _ Organizer) (string, error) {
	if err := params.require("deleteEvent", "eventId"); err != nil {
		return "", err
	}

	svc, err := newCalendarService(ctx, accessToken)
	if err != nil {
		return "", err
	}

	sendUpdates := "all"
	if !params.Bool("notifyAttendees", true) {
		sendUpdates = "none"
	}

	eventID := params.String("eventId")
	if err := svc.Events.Delete("primary", eventID).SendUpdates(sendUpdates).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("failed to delete event: %w", err)
	}

	return fmt.Sprintf("Deleted event %s from your calendar.", eventID), nil
}

// execSearchEvents runs a free-text search over the coming year.
func execSearchEvents(ctx context.Context, accessToken string, params Params, _ Organizer) (string, error) {
	if err := params.require("searchEvents", "query"); err != nil {
		return "", err
	}

	svc, err := newCalendarService(ctx, accessToken)
	if err != nil {
		return "", err
	}

	now := time.Now()
	timeMin := params.String("timeMin")
	if timeMin == "" {
		timeMin = now.Format(time.RFC3339)
	}
	timeMax := params.String("timeMax")
	if timeMax == "" {
		timeMax = now.AddDate(1, 0, 0).Format(time.RFC3339)
	}

	list, err := svc.Events.List("primary").
		Q(params.String("query")).
		TimeMin(timeMin).TimeMax(timeMax).
		MaxResults(int64(params.Int("maxResults", 20))).
		SingleEvents(true).OrderBy("startTime").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to search events: %w", err)
	}

	if len(list.Items) == 0 {
		return fmt.Sprintf("No events matched %q.", params.String("query")), nil
	}
	return formatEventList(fmt.Sprintf("Events matching %q", params.String("query")), list.Items), nil
}

// execFindFreeTimeSlots walks the window in 30-minute steps and
// reports slots of the requested duration that clear everyone's busy
// blocks.
func execFindFreeTimeSlots(ctx context.Context, accessToken string, params Params, _ Organizer) (string, error) {
	if err := params.require("findFreeTimeSlots", "startDate", "endDate"); err != nil {
		return "", err
	}

	start, err := time.Parse(time.RFC3339, params.String("startDate"))
	if err != nil {
		return "", fmt.Errorf("findFreeTimeSlots: invalid startDate: %w", err)
	}
	end, err := time.Parse(time.RFC3339, params.String("endDate"))
	if err != nil {
		return "", fmt.Errorf("findFreeTimeSlots: invalid endDate: %w", err)
	}

	svc, err := newCalendarService(ctx, accessToken)
	if err != nil {
		return "", err
	}

	items := []*calendar.FreeBusyRequestItem{{Id: "primary"}}
	for _, email := range params.StringSlice("attendees") {
		items = append(items, &calendar.FreeBusyRequestItem{Id: email})
	}

	resp, err := svc.Freebusy.Query(&calendar.FreeBusyRequest{
		TimeMin: start.Format(time.RFC3339),
		TimeMax: end.Format(time.RFC3339),
		Items:   items,
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to find free time slots: %w", err)
	}

	// Busy blocks from every queried calendar count, so a slot is only
	// offered when the organizer and all attendees are free.
	var busy []*calendar.TimePeriod
	for _, cal := range resp.Calendars {
		busy = append(busy, cal.Busy...)
	}

	duration := time.Duration(params.Int("durationMinutes", 60)) * time.Minute
	slots := scanFreeSlots(start, end, duration, busy)

	if len(slots) == 0 {
		return "No free slots of the requested length in that window.", nil
	}
	return fmt.Sprintf("Found %d free slots of %d minutes:\n- %s",
		len(slots), int(duration.Minutes()), strings.Join(slots, "\n- ")), nil
}

// execGetCalendarList lists every calendar the account can see.
func execGetCalendarList(ctx context.Context, accessToken string, _ Params, _ Organizer) (string, error) {
	svc, err := newCalendarService(ctx, accessToken)
	if err != nil {
		return "", err
	}

	list, err := svc.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to get calendar list: %w", err)
	}
	if len(list.Items) == 0 {
		return "No calendars on the account.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You have %d calendars:\n", len(list.Items))
	for i, cal := range list.Items {
		fmt.Fprintf(&sb, "%d. %s (id %s, role %s", i+1, cal.Summary, cal.Id, cal.AccessRole)
		if cal.Primary {
			sb.WriteString(", primary")
		}
		sb.WriteString(")\n")
	}
	return sb.String(), nil
}

// execCheckEventConflicts lists non-cancelled events overlapping the
// given window.
func execCheckEventConflicts(ctx context.Context, accessToken string, params Params, _ Organizer) (string, error) {
	if err := params.require("checkEventConflicts", "start", "end"); err != nil {
		return "", err
	}

	svc, err := newCalendarService(ctx, accessToken)
	if err != nil {
		return "", err
	}

	list, err := svc.Events.List("primary").
		TimeMin(params.String("start")).TimeMax(params.String("end")).
		SingleEvents(true).
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to check event conflicts: %w", err)
	}

	exclude := params.String("excludeEventId")
	var conflicts []*calendar.Event
	for _, event := range list.Items {
		if event.Id == exclude || event.Status == "cancelled" {
			continue
		}
		conflicts = append(conflicts, event)
	}

	if len(conflicts) == 0 {
		return "That time is clear, no conflicting events.", nil
	}
	return formatEventList(fmt.Sprintf("%d conflicting events", len(conflicts)), conflicts), nil
}

// scanFreeSlots walks the window in 30-minute steps and returns every
// slot of the requested duration that overlaps no busy period.
func scanFreeSlots(start, end time.Time, duration time.Duration, busy []*calendar.TimePeriod) []string {
	var slots []string
	for cursor := start; !cursor.Add(duration).After(end); cursor = cursor.Add(30 * time.Minute) {
		slotEnd := cursor.Add(duration)
		free := true
		for _, period := range busy {
			busyStart, err1 := time.Parse(time.RFC3339, period.Start)
			busyEnd, err2 := time.Parse(time.RFC3339, period.End)
			if err1 != nil || err2 != nil {
				continue
			}
			if cursor.Before(busyEnd) && slotEnd.After(busyStart) {
				free = false
				break
			}
		}
		if free {
			slots = append(slots, fmt.Sprintf("%s to %s",
				cursor.Format(time.RFC3339), slotEnd.Format(time.RFC3339)))
		}
	}
	return slots
}

// formatEventList renders events as a digest for the summary prompt.
func formatEventList(heading string, events []*calendar.Event) string {
	var sb strings.Builder
	sb.WriteString(heading + ":\n")
	for i, event := range events {
		start, end := "", ""
		if event.Start != nil {
			start = event.Start.DateTime
			if start == "" {
				start = event.Start.Date
			}
		}
		if event.End != nil {
			end = event.End.DateTime
			if end == "" {
				end = event.End.Date
			}
		}

		fmt.Fprintf(&sb, "%d. %s (%s to %s, id %s)", i+1, event.Summary, start, end, event.Id)
		if event.Location != "" {
			fmt.Fprintf(&sb, " at %s", event.Location)
		}
		if event.HangoutLink != "" {
			fmt.Fprintf(&sb, ", Meet: %s", event.HangoutLink)
		}
		if len(event.Attendees) > 0 {
			emails := make([]string, 0, len(event.Attendees))
			for _, a := range event.Attendees {
				emails = append(emails, a.Email)
			}
			fmt.Fprintf(&sb, " with %s", strings.Join(emails, ", "))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
