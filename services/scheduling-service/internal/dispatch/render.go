package dispatch

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/model"
)

// RenderContext is the data available to reminder templates. Times are already in the
// client's zone.
type RenderContext struct {
	ClientName   string
	ServiceName  string
	BusinessName string
	Start        time.Time
	Offset       model.OffsetType
}

func (r RenderContext) When() string {
	return r.Start.Format("Mon Jan 2 at 15:04 MST")
}

type templatePair struct {
	subject *template.Template
	body    *template.Template
}

// Renderer holds one template pair per offset; SMS and WhatsApp use the body only.
type Renderer struct {
	businessName string
	byOffset     map[model.OffsetType]templatePair
}

var defaultTemplates = map[model.OffsetType][2]string{
	model.Offset24h: {
		`Reminder: {{.ServiceName}} tomorrow`,
		`Hi {{.ClientName}}, this is a reminder of your {{.ServiceName}} appointment{{with .BusinessName}} at {{.}}{{end}} on {{.When}}.`,
	},
	model.Offset2h: {
		`Reminder: {{.ServiceName}} in 2 hours`,
		`Hi {{.ClientName}}, your {{.ServiceName}} appointment{{with .BusinessName}} at {{.}}{{end}} starts soon ({{.When}}).`,
	},
}

func NewRenderer(businessName string) (*Renderer, error) {
	r := &Renderer{businessName: businessName, byOffset: map[model.OffsetType]templatePair{}}
	for offset, src := range defaultTemplates {
		subject, err := template.New(string(offset) + "-subject").Parse(src[0])
		if err != nil {
			return nil, fmt.Errorf("parse %s subject template: %w", offset, err)
		}
		body, err := template.New(string(offset) + "-body").Parse(src[1])
		if err != nil {
			return nil, fmt.Errorf("parse %s body template: %w", offset, err)
		}
		r.byOffset[offset] = templatePair{subject: subject, body: body}
	}
	return r, nil
}

// Render builds the message for task, converting the start time to the client's zone.
func (r *Renderer) Render(task model.ReminderTask) (Message, error) {
	pair, ok := r.byOffset[task.Offset]
	if !ok {
		return Message{}, fmt.Errorf("no template for offset %q", task.Offset)
	}
	loc := task.Location
	if loc == nil {
		loc = time.UTC
	}
	name := task.Client.Name
	if name == "" {
		name = "there"
	}
	service := task.Appointment.ServiceName
	if service == "" {
		service = "upcoming"
	}
	rc := RenderContext{
		ClientName:   name,
		ServiceName:  service,
		BusinessName: r.businessName,
		Start:        task.Appointment.StartTime.In(loc),
		Offset:       task.Offset,
	}

	var subject, body bytes.Buffer
	if err := pair.subject.Execute(&subject, rc); err != nil {
		return Message{}, err
	}
	if err := pair.body.Execute(&body, rc); err != nil {
		return Message{}, err
	}
	msg := Message{Body: body.String()}
	if task.Channel == model.ChannelEmail {
		msg.Subject = subject.String()
	}
	return msg, nil
}
