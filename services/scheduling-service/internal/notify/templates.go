package notify

import (
	"bytes"
	"fmt"
	"text/template"
	"time"
)

type Kind string

const (
	KindCreated     Kind = "created"
	KindRescheduled Kind = "rescheduled"
	KindCanceled    Kind = "canceled"
	KindConfirmed   Kind = "confirmed"
)

var templates = template.Must(template.New("notify").Parse(`
{{define "created"}}Hi {{.CustomerName}}, your appointment{{with .OrganizationName}} at {{.}}{{end}} is booked for {{.Date}} at {{.Time}}.{{end}}
{{define "rescheduled"}}Hi {{.CustomerName}}, your appointment{{with .OrganizationName}} at {{.}}{{end}} was moved{{with .PreviousDate}} from {{.}} at {{$.PreviousTime}}{{end}} to {{.Date}} at {{.Time}}.{{end}}
{{define "canceled"}}Hi {{.CustomerName}}, your appointment{{with .OrganizationName}} at {{.}}{{end}} on {{.Date}} at {{.Time}} was canceled.{{end}}
{{define "confirmed"}}Hi {{.CustomerName}}, your appointment{{with .OrganizationName}} at {{.}}{{end}} on {{.Date}} at {{.Time}} is confirmed. See you then!{{end}}
`))

type messageData struct {
	CustomerName     string
	OrganizationName string
	Date             string
	Time             string
	PreviousDate     string
	PreviousTime     string
}

const (
	dateFormat = "Mon, Jan 2"
	timeFormat = "15:04"
)

func newMessageData(customer, organization string, start time.Time, previous *time.Time, loc *time.Location) messageData {
	local := start.In(loc)
	data := messageData{
		CustomerName:     customer,
		OrganizationName: organization,
		Date:             local.Format(dateFormat),
		Time:             local.Format(timeFormat),
	}
	if previous != nil {
		prev := previous.In(loc)
		data.PreviousDate = prev.Format(dateFormat)
		data.PreviousTime = prev.Format(timeFormat)
	}
	return data
}

func render(kind Kind, data messageData) (string, error) {
	if templates.Lookup(string(kind)) == nil {
		return "", fmt.Errorf("no template for %q", kind)
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, string(kind), data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
