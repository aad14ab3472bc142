// Package calendar creates and manages Google Calendar events for tenant
// companies.
//
// Client is a thin wrapper around the Calendar v3 service bound to one access
// token. Gateway resolves a company's identity and scheduling configuration,
// obtains a valid token and runs each call through Client, retrying once
// with a forced refresh when the API answers 401.
//
// Booking a slot through Gateway.CreateEvent:
//
//	event, err := gw.CreateEvent(ctx, "acme", calendar.CreateEventInput{
//	    StartTime:     "2024-12-16T09:00:00-05:00",
//	    AttendeeEmail: "ana@example.com",
//	    CustomerPhone: "+593999999999",
//	    CustomerName:  "Ana",
//	})
//
// The event gets a Google Meet conference and its description is extended
// with links to the event and the meeting. The booking is then recorded as an
// appointment so the availability engine stops offering the slot.
package calendar
