package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/briangreenhill/formcoach/internal/presentation"
	"github.com/briangreenhill/formcoach/internal/proposal"
)

var noticeTmpl = template.Must(template.New("notice").Parse(`<p>{{.Icon}} <strong>{{.Level}}</strong> for {{.Athlete}} in cycle {{.Cycle}}</p>
<p>{{.Context}}</p>
<ul>
{{- range .Options}}
  <li>{{.Description}} ({{.Risk}} risk, {{.AffectedDays}} sessions)</li>
{{- end}}
</ul>
<p>Expires {{.Expires}}.</p>
`))

type noticeOption struct {
	Description  string
	Risk         string
	AffectedDays int
}

// ProposalNotifier emails the coach inbox when an urgent proposal opens.
type ProposalNotifier struct {
	sender Sender
	inbox  string
}

func NewProposalNotifier(sender Sender, inbox string) *ProposalNotifier {
	return &ProposalNotifier{sender: sender, inbox: inbox}
}

func (n *ProposalNotifier) ProposalOpened(_ context.Context, p *proposal.Proposal) error {
	if n.inbox == "" {
		return nil
	}
	level := presentation.ForSeverity(p.AlertLevel)
	data := struct {
		Icon, Level, Athlete, Cycle, Context, Expires string
		Options                                       []noticeOption
	}{
		Icon:    level.Icon,
		Level:   level.Label,
		Athlete: p.AthleteID,
		Cycle:   p.CycleTag,
		Context: p.Context,
		Expires: p.ExpiresAt.UTC().Format(time.RFC1123),
	}
	for _, o := range p.Options {
		data.Options = append(data.Options, noticeOption{
			Description:  o.Description,
			Risk:         presentation.ForRisk(o.RiskLevel).Label,
			AffectedDays: o.AffectedDays,
		})
	}
	var buf bytes.Buffer
	if err := noticeTmpl.Execute(&buf, data); err != nil {
		return err
	}
	subject := fmt.Sprintf("[%s] Plan adjustment proposed for %s", level.Label, p.CycleTag)
	return n.sender.Send(n.inbox, subject, buf.String())
}
