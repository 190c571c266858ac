package model

import (
	"time"
)

// Patient is one diagnostic case. Optional columns are pointers so NULL and
// empty string stay distinguishable on the way in and out of the table.
type Patient struct {
	ID            int64  `db:"id" json:"id"`
	AttentionCode string `db:"attention_code" json:"attentionCode"`

	LastName  string  `db:"last_name" json:"lastName"`
	FirstName string  `db:"first_name" json:"firstName"`
	DNI       *string `db:"dni" json:"dni,omitempty"`
	Age       *int    `db:"age" json:"age,omitempty"`
	Gender    *string `db:"gender" json:"gender,omitempty"`
	Phone     *string `db:"phone" json:"phone,omitempty"`

	ContactFamily *string `db:"contact_family" json:"contactFamily,omitempty"`
	ContactPhone  *string `db:"contact_phone" json:"contactPhone,omitempty"`

	RequestingDoctor *string `db:"requesting_doctor" json:"requestingDoctor,omitempty"`
	Clinic           *string `db:"clinic" json:"clinic,omitempty"`
	StudyReason      *string `db:"study_reason" json:"studyReason,omitempty"`
	ServiceType      *string `db:"service_type" json:"serviceType,omitempty"`

	RegistrationDate *string `db:"registration_date" json:"registrationDate,omitempty"`
	DeliveryDate     *string `db:"delivery_date" json:"deliveryDate,omitempty"`

	MacroDescription *string `db:"macro_description" json:"macroDescription,omitempty"`
	MicroDescription *string `db:"micro_description" json:"microDescription,omitempty"`
	Diagnosis        *string `db:"diagnosis" json:"diagnosis,omitempty"`

	// Photos hold inline data URIs (data:image/...;base64,...).
	Photo1 *string `db:"photo1" json:"photo1,omitempty"`
	Photo2 *string `db:"photo2" json:"photo2,omitempty"`

	IsSigned bool    `db:"is_signed" json:"isSigned"`
	PDFPath  *string `db:"pdf_path" json:"pdfPath,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// HasArtifact reports whether the record carries a rendered report path.
func (p *Patient) HasArtifact() bool {
	return p.PDFPath != nil && *p.PDFPath != ""
}

// FullName renders the report name as last name, space, first name.
func (p *Patient) FullName() string {
	return p.LastName + " " + p.FirstName
}

// UpdatePatientRequest is a partial update of the clinical fields. Nil
// leaves the column untouched; signing state is never part of it.
type UpdatePatientRequest struct {
	LastName         *string `json:"lastName" binding:"omitempty,max=120"`
	FirstName        *string `json:"firstName" binding:"omitempty,max=120"`
	DNI              *string `json:"dni" binding:"omitempty,max=20"`
	Age              *int    `json:"age" binding:"omitempty,min=0,max=150"`
	Gender           *string `json:"gender" binding:"omitempty,max=20"`
	Phone            *string `json:"phone" binding:"omitempty,max=40"`
	RequestingDoctor *string `json:"requestingDoctor" binding:"omitempty,max=200"`
	Clinic           *string `json:"clinic" binding:"omitempty,max=200"`
	StudyReason      *string `json:"studyReason"`
	ServiceType      *string `json:"serviceType" binding:"omitempty,max=80"`
	DeliveryDate     *string `json:"deliveryDate" binding:"omitempty,max=40"`
	MacroDescription *string `json:"macroDescription"`
	MicroDescription *string `json:"microDescription"`
	Diagnosis        *string `json:"diagnosis"`
	Photo1           *string `json:"photo1" binding:"omitempty,startswith=data:image/"`
	Photo2           *string `json:"photo2" binding:"omitempty,startswith=data:image/"`
}

// Columns returns the set columns keyed by their db name, in a stable order.
func (r *UpdatePatientRequest) Columns() ([]string, []interface{}) {
	var (
		cols []string
		vals []interface{}
	)
	add := func(col string, set bool, v interface{}) {
		if set {
			cols = append(cols, col)
			vals = append(vals, v)
		}
	}

	add("last_name", r.LastName != nil, r.LastName)
	add("first_name", r.FirstName != nil, r.FirstName)
	add("dni", r.DNI != nil, r.DNI)
	add("age", r.Age != nil, r.Age)
	add("gender", r.Gender != nil, r.Gender)
	add("phone", r.Phone != nil, r.Phone)
	add("requesting_doctor", r.RequestingDoctor != nil, r.RequestingDoctor)
	add("clinic", r.Clinic != nil, r.Clinic)
	add("study_reason", r.StudyReason != nil, r.StudyReason)
	add("service_type", r.ServiceType != nil, r.ServiceType)
	add("delivery_date", r.DeliveryDate != nil, r.DeliveryDate)
	add("macro_description", r.MacroDescription != nil, r.MacroDescription)
	add("micro_description", r.MicroDescription != nil, r.MicroDescription)
	add("diagnosis", r.Diagnosis != nil, r.Diagnosis)
	add("photo1", r.Photo1 != nil, r.Photo1)
	add("photo2", r.Photo2 != nil, r.Photo2)

	return cols, vals
}
