package domain

// IncomingEventFilter narrows incoming event listings. Empty fields match everything.
type IncomingEventFilter struct {
	Provider string
	Status   EventStatus
}

// OutgoingEventFilter narrows outgoing event listings. Empty fields match everything.
type OutgoingEventFilter struct {
	Provider string
	Status   OutgoingStatus
}
