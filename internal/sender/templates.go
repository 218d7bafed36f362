package sender

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"math/rand/v2"
	"strings"

	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

var subjectLines = map[models.ExperienceType][]string{
	models.ExperienceCrush: {
		"Someone has a secret admiration for you 💕",
		"A love note awaits you 💌",
		"Someone is thinking of you... 🥰",
	},
	models.ExperienceCouple: {
		"A love letter from someone special 💖",
		"Your journey together, beautifully told 💑",
		"A celebration of your love story 💝",
	},
}

// SubjectLines returns the candidate subjects for t.
func SubjectLines(t models.ExperienceType) []string {
	return subjectLines[t]
}

// ExperienceEmailData feeds templates/experience.html.
type ExperienceEmailData struct {
	RecipientName string
	SenderText    string
	IsCrush       bool
	ExperienceURL string
}

// AdminClaimEmailData feeds templates/admin_claim.html.
type AdminClaimEmailData struct {
	PayerName      string
	PayerEmail     string
	Method         string
	MethodLabel    string
	TransactionID  string
	Amount         string
	ExperienceType models.ExperienceType
	RecipientName  string
	ScreenshotKey  string
	ApproveURL     string
	ExpiresAt      string
}

// ReplyEmailData feeds templates/reply.html.
type ReplyEmailData struct {
	SenderName    string
	RecipientName string
	Response      string
	ReplyMessage  string
}

// Renderer renders the embedded email templates.
type Renderer struct {
	templates map[string]*template.Template
	pick      func(n int) int
}

func NewRenderer() (*Renderer, error) {
	tmpls := make(map[string]*template.Template)
	for _, name := range []string{"experience.html", "admin_claim.html", "reply.html"} {
		tmpl, err := template.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		tmpls[name] = tmpl
	}
	return &Renderer{templates: tmpls, pick: rand.IntN}, nil
}

func (r *Renderer) render(name string, data interface{}) (string, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown template %s", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("template render failed: %w", err)
	}
	return buf.String(), nil
}

// ExperienceEmail builds the recipient's notification for e, linking to experienceURL.
func (r *Renderer) ExperienceEmail(e *models.Experience, experienceURL string) (Email, error) {
	subjects := subjectLines[e.ExperienceType]
	if len(subjects) == 0 {
		return Email{}, fmt.Errorf("no subject lines for experience type %q", e.ExperienceType)
	}

	isCrush := e.ExperienceType == models.ExperienceCrush
	senderText := "from someone who loves you"
	switch {
	case e.SenderName != nil && strings.TrimSpace(*e.SenderName) != "":
		senderText = "from " + strings.TrimSpace(*e.SenderName)
	case isCrush:
		senderText = "from a secret admirer"
	}

	html, err := r.render("experience.html", ExperienceEmailData{
		RecipientName: e.RecipientName,
		SenderText:    senderText,
		IsCrush:       isCrush,
		ExperienceURL: experienceURL,
	})
	if err != nil {
		return Email{}, err
	}

	return Email{
		To:      e.RecipientEmail,
		Subject: subjects[r.pick(len(subjects))],
		HTML:    html,
		Tags: map[string]string{
			"experience_id":   e.ID.String(),
			"experience_type": string(e.ExperienceType),
		},
	}, nil
}

// AdminClaimEmail builds the approval request sent to the admin inbox.
func (r *Renderer) AdminClaimEmail(to string, data AdminClaimEmailData) (Email, error) {
	html, err := r.render("admin_claim.html", data)
	if err != nil {
		return Email{}, err
	}
	return Email{
		To:      to,
		Subject: fmt.Sprintf("💰 New Payment: %s from %s", strings.ToUpper(data.Method), data.PayerName),
		HTML:    html,
	}, nil
}

// ReplyEmail builds the message that carries a recipient's reply back to the sender.
func (r *Renderer) ReplyEmail(to string, data ReplyEmailData) (Email, error) {
	if data.SenderName == "" {
		data.SenderName = "Someone special"
	}
	recipient := data.RecipientName
	if recipient == "" {
		recipient = "Your Valentine"
	}
	html, err := r.render("reply.html", data)
	if err != nil {
		return Email{}, err
	}
	return Email{
		To:      to,
		Subject: fmt.Sprintf("💕 %s replied to your message!", recipient),
		HTML:    html,
	}, nil
}
