package models

import "time"

// StatusChangeNotification is the payload handed to the notification
// dispatcher after a status transition commits. Delivery is best effort and
// never affects the already-committed transition.
type StatusChangeNotification struct {
	ApplicationID  string            `json:"application_id"`
	StudentContact string            `json:"student_contact"`
	TourLabel      string            `json:"tour_label"`
	TourDate       time.Time         `json:"tour_date"`
	NewStatus      ApplicationStatus `json:"new_status"`
	Note           string            `json:"note,omitempty"`
}
