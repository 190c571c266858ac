package report

import (
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"

	"github.com/jwalitptl/pathology-report-api/internal/model"
)

// DateLayout is the day/month/year form printed on every report.
const DateLayout = "02/01/2006"

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="es">
<head>
<meta charset="utf-8">
<title>Informe {{.AttentionCode}}</title>
<style>{{.Assets.Stylesheet}}</style>
</head>
<body>
<div class="page">
<img class="letterhead" src="{{.Assets.Letterhead}}" alt="">
<img class="separator" src="{{.Assets.SeparatorTop}}" alt="">
<div class="report-date">Fecha: {{.Date}}</div>
<table class="patient">
<tr><td class="label">Paciente</td><td id="patient-name">{{.Name}}</td></tr>
<tr><td class="label">Codigo de atencion</td><td>{{.AttentionCode}}</td></tr>
<tr><td class="label">DNI</td><td>{{.DNI}}</td></tr>
<tr><td class="label">Edad</td><td>{{.Age}}</td></tr>
<tr><td class="label">Sexo</td><td>{{.Gender}}</td></tr>
<tr><td class="label">Medico solicitante</td><td>{{.RequestingDoctor}}</td></tr>
<tr><td class="label">Clinica</td><td>{{.Clinic}}</td></tr>
<tr><td class="label">Tipo de servicio</td><td>{{.ServiceType}}</td></tr>
<tr><td class="label">Motivo de estudio</td><td>{{.StudyReason}}</td></tr>
<tr><td class="label">Fecha de registro</td><td>{{.RegistrationDate}}</td></tr>
<tr><td class="label">Fecha de entrega</td><td>{{.DeliveryDate}}</td></tr>
</table>
<img class="separator" src="{{.Assets.SeparatorBottom}}" alt="">
<h2>Descripcion macroscopica</h2>
<div class="section-body" id="macro-description">{{.MacroDescription}}</div>
<h2>Descripcion microscopica</h2>
<div class="section-body" id="micro-description">{{.MicroDescription}}</div>
<h2>Diagnostico</h2>
<div class="section-body" id="diagnosis">{{.Diagnosis}}</div>
{{- if .Photos}}
<div class="gallery">
{{- range .Photos}}
<img src="{{.}}" alt="">
{{- end}}
</div>
{{- end}}
<div class="signature"><img src="{{.Assets.Signature}}" alt=""></div>
</div>
</body>
</html>
`))

type view struct {
	Assets *Assets
	Date   string

	Name             string
	AttentionCode    string
	DNI              string
	Age              string
	Gender           string
	RequestingDoctor string
	Clinic           string
	ServiceType      string
	StudyReason      string
	RegistrationDate string
	DeliveryDate     string

	MacroDescription string
	MicroDescription string
	Diagnosis        string

	Photos []template.URL
}

// Option configures a Composer.
type Option func(*Composer)

// WithClock overrides the report date source.
func WithClock(now func() time.Time) Option {
	return func(c *Composer) { c.now = now }
}

// Composer renders the report HTML from a patient record and its photos.
type Composer struct {
	assets *Assets
	now    func() time.Time
}

func NewComposer(assets *Assets, opts ...Option) *Composer {
	c := &Composer{assets: assets, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose renders a self-contained HTML report for p. Photos that are not
// inline images are left out of the gallery.
func (c *Composer) Compose(p *model.Patient, photo1, photo2 string) (string, error) {
	if p == nil {
		return "", fmt.Errorf("compose: nil patient")
	}

	v := view{
		Assets:           c.assets,
		Date:             c.now().Format(DateLayout),
		Name:             p.FullName(),
		AttentionCode:    p.AttentionCode,
		DNI:              deref(p.DNI),
		Gender:           deref(p.Gender),
		RequestingDoctor: deref(p.RequestingDoctor),
		Clinic:           deref(p.Clinic),
		ServiceType:      deref(p.ServiceType),
		StudyReason:      deref(p.StudyReason),
		RegistrationDate: deref(p.RegistrationDate),
		DeliveryDate:     deref(p.DeliveryDate),
		MacroDescription: deref(p.MacroDescription),
		MicroDescription: deref(p.MicroDescription),
		Diagnosis:        deref(p.Diagnosis),
	}
	if p.Age != nil {
		v.Age = strconv.Itoa(*p.Age)
	}
	for _, photo := range []string{photo1, photo2} {
		if strings.HasPrefix(photo, "data:image/") {
			v.Photos = append(v.Photos, template.URL(photo))
		}
	}

	var sb strings.Builder
	if err := reportTemplate.Execute(&sb, v); err != nil {
		return "", fmt.Errorf("failed to compose report: %w", err)
	}
	return sb.String(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
