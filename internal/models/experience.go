package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ExperienceType is fixed when the experience is created.
type ExperienceType string

const (
	ExperienceCrush  ExperienceType = "CRUSH"
	ExperienceCouple ExperienceType = "COUPLE"
)

// Valid reports whether t is a known experience type.
func (t ExperienceType) Valid() bool {
	return t == ExperienceCrush || t == ExperienceCouple
}

// LifecycleState is the monotonic stage of an experience.
type LifecycleState string

const (
	StateDraft     LifecycleState = "DRAFT"
	StatePreview   LifecycleState = "PREVIEW"
	StatePaid      LifecycleState = "PAID"
	StateSent      LifecycleState = "SENT"
	StateOpened    LifecycleState = "OPENED"
	StateResponded LifecycleState = "RESPONDED"
)

var stateRank = map[LifecycleState]int{
	StateDraft:     0,
	StatePreview:   1,
	StatePaid:      2,
	StateSent:      3,
	StateOpened:    4,
	StateResponded: 5,
}

// Rank returns the position of s in the lifecycle, or -1 for unknown states.
func (s LifecycleState) Rank() int {
	if r, ok := stateRank[s]; ok {
		return r
	}
	return -1
}

// AtLeast reports whether s is other or any later state.
func (s LifecycleState) AtLeast(other LifecycleState) bool {
	return s.Rank() >= other.Rank() && s.Rank() >= 0
}

// PrePaymentStates are the states from which a payment may move an experience to PAID.
var PrePaymentStates = []LifecycleState{StateDraft, StatePreview}

// Response is the recipient's answer captured on the playback page.
type Response string

const (
	ResponseYes          Response = "YES"
	ResponseGracefulExit Response = "GRACEFUL_EXIT"
	ResponseReaffirmed   Response = "REAFFIRMED"
)

func (r Response) Valid() bool {
	switch r {
	case ResponseYes, ResponseGracefulExit, ResponseReaffirmed:
		return true
	}
	return false
}

// Experience is the GORM model for one romantic greeting.
type Experience struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ExperienceType ExperienceType `gorm:"type:varchar(10);not null" json:"experience_type"`
	LifecycleState LifecycleState `gorm:"type:varchar(20);not null;index" json:"lifecycle_state"`
	Content        datatypes.JSON `gorm:"type:jsonb" json:"content"`
	AmountDue      int64          `gorm:"not null" json:"amount_due"` // minor units
	Currency       string         `gorm:"type:varchar(10);not null" json:"currency"`
	RecipientName  string         `gorm:"type:varchar(255);not null" json:"recipient_name"`
	RecipientEmail string         `gorm:"type:varchar(255);not null" json:"recipient_email"`
	SenderName     *string        `gorm:"type:varchar(255)" json:"sender_name,omitempty"`
	SenderEmail    *string        `gorm:"type:varchar(255)" json:"sender_email,omitempty"`
	Response       *Response      `gorm:"type:varchar(20)" json:"response,omitempty"`
	ReplyMessage   *string        `gorm:"type:text" json:"reply_message,omitempty"`
	PaidAt         *time.Time     `json:"paid_at,omitempty"`
	SentAt         *time.Time     `json:"sent_at,omitempty"`
	OpenedAt       *time.Time     `json:"opened_at,omitempty"`
	RespondedAt    *time.Time     `json:"responded_at,omitempty"`
	RepliedAt      *time.Time     `json:"replied_at,omitempty"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`

	// DeliveryClaimedAt is set while one caller owns sending the experience email.
	DeliveryClaimedAt *time.Time `gorm:"index" json:"-"`
}

// ExperienceContent is the subset of the builder payload the server validates.
// The full payload is stored as-is in Experience.Content.
type ExperienceContent struct {
	Note                string   `json:"note,omitempty"`
	Memories            []Memory `json:"memories,omitempty"`
	AdmirationMessages  []string `json:"admirationMessages,omitempty"`
	AdmirationPhotos    []string `json:"admirationPhotos,omitempty"`
	AppreciationMessage string   `json:"appreciationMessage,omitempty"`
}

type Memory struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date,omitempty"`
	Photo       string `json:"photo,omitempty"`
}

// PublicExperience is what the playback page is allowed to read.
type PublicExperience struct {
	ID             uuid.UUID      `json:"id"`
	ExperienceType ExperienceType `json:"experience_type"`
	LifecycleState LifecycleState `json:"lifecycle_state"`
	Content        datatypes.JSON `json:"content"`
	RecipientName  string         `json:"recipient_name"`
	SenderName     *string        `json:"sender_name,omitempty"`
	Response       *Response      `json:"response,omitempty"`
}

// Public strips payment and contact data from e.
func (e *Experience) Public() PublicExperience {
	return PublicExperience{
		ID:             e.ID,
		ExperienceType: e.ExperienceType,
		LifecycleState: e.LifecycleState,
		Content:        e.Content,
		RecipientName:  e.RecipientName,
		SenderName:     e.SenderName,
		Response:       e.Response,
	}
}
