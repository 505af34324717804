package domain

const (
	AppointmentScheduled  = "scheduled"
	AppointmentConfirmed  = "confirmed"
	AppointmentInProgress = "in_progress"
	AppointmentCompleted  = "completed"
	AppointmentCancelled  = "cancelled"
	AppointmentNoShow     = "no_show"
)

const (
	ConsultationInPerson     = "in_person"
	ConsultationTelemedicine = "telemedicine"
	ConsultationFollowUp     = "follow_up"
)

type Appointment struct {
	ID               int64  `db:"id" json:"id"`
	PatientID        int64  `db:"patient_id" json:"patient_id"`
	DoctorID         int64  `db:"doctor_id" json:"doctor_id"`
	AppointmentDate  string `db:"appointment_date" json:"appointment_date"`
	AppointmentTime  string `db:"appointment_time" json:"appointment_time"`
	DurationMinutes  int64  `db:"duration_minutes" json:"duration_minutes"`
	ConsultationType string `db:"consultation_type" json:"consultation_type"`
	Status           string `db:"status" json:"status"`
	Reason           string `db:"reason" json:"reason"`
	Notes            string `db:"notes" json:"notes"`
	CreatedAt        string `db:"created_at" json:"created_at"`
	UpdatedAt        string `db:"updated_at" json:"updated_at"`
}
