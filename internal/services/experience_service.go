package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/apperrors"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/models"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/repository"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/sender"
	aws_pkg "github.com/KaranSingh0790/Cupid-s-Arrow/pkg/aws"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

const maxReplyLength = 2000

type ExperienceService interface {
	Create(ctx context.Context, req models.CreateExperienceRequest) (*models.CreateExperienceResponse, error)
	Get(ctx context.Context, id uuid.UUID) (*models.PublicExperience, error)
	MarkOpened(ctx context.Context, id uuid.UUID) (*models.PublicExperience, error)
	Respond(ctx context.Context, id uuid.UUID, response models.Response) (*models.PublicExperience, error)
	Reply(ctx context.Context, id uuid.UUID, message string) error
}

// replyEmailRenderer is implemented by *sender.Renderer.
type replyEmailRenderer interface {
	ReplyEmail(to string, data sender.ReplyEmailData) (sender.Email, error)
}

type experienceService struct {
	experiences repository.ExperienceRepository
	emailSender sender.EmailSender
	renderer    replyEmailRenderer
	audit       AuditRecorder
	metrics     aws_pkg.MetricsRecorder
	logger      *zap.Logger
	now         func() time.Time
}

func NewExperienceService(
	experiences repository.ExperienceRepository,
	emailSender sender.EmailSender,
	renderer replyEmailRenderer,
	audit AuditRecorder,
	metrics aws_pkg.MetricsRecorder,
	logger *zap.Logger,
) ExperienceService {
	return &experienceService{
		experiences: experiences,
		emailSender: emailSender,
		renderer:    renderer,
		audit:       audit,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

func validateCreate(req *models.CreateExperienceRequest) (models.ExperienceType, error) {
	expType := models.ExperienceType(strings.ToUpper(strings.TrimSpace(req.ExperienceType)))
	if !expType.Valid() {
		return "", apperrors.Validation("experience_type must be CRUSH or COUPLE")
	}
	req.RecipientName = strings.TrimSpace(req.RecipientName)
	req.RecipientEmail = strings.ToLower(strings.TrimSpace(req.RecipientEmail))
	req.SenderName = strings.TrimSpace(req.SenderName)
	req.SenderEmail = strings.ToLower(strings.TrimSpace(req.SenderEmail))

	if req.RecipientName == "" {
		return "", apperrors.Validation("recipient_name is required")
	}
	if !emailPattern.MatchString(req.RecipientEmail) {
		return "", apperrors.Validation("A valid recipient_email is required")
	}
	if req.SenderEmail != "" && !emailPattern.MatchString(req.SenderEmail) {
		return "", apperrors.Validation("sender_email is not a valid email")
	}

	var content models.ExperienceContent
	if len(req.Content) > 0 {
		if err := json.Unmarshal(req.Content, &content); err != nil {
			return "", apperrors.Validation("content must be a JSON object")
		}
	}
	if expType == models.ExperienceCouple && !hasCoupleContent(content) {
		return "", apperrors.Validation("A COUPLE experience needs at least one memory or admiration message")
	}
	return expType, nil
}

func hasCoupleContent(c models.ExperienceContent) bool {
	for _, m := range c.Memories {
		if strings.TrimSpace(m.Title) != "" {
			return true
		}
	}
	for _, msg := range c.AdmirationMessages {
		if strings.TrimSpace(msg) != "" {
			return true
		}
	}
	return false
}

func (s *experienceService) Create(ctx context.Context, req models.CreateExperienceRequest) (*models.CreateExperienceResponse, error) {
	expType, err := validateCreate(&req)
	if err != nil {
		return nil, err
	}
	currency := models.NormalizeCurrency(req.Currency)
	amount, ok := models.PriceFor(expType, currency)
	if !ok {
		return nil, apperrors.Validation(fmt.Sprintf("Unsupported currency %q", req.Currency))
	}

	content := datatypes.JSON("{}")
	if len(req.Content) > 0 {
		content = datatypes.JSON(req.Content)
	}
	exp := &models.Experience{
		ExperienceType: expType,
		LifecycleState: models.StateDraft,
		Content:        content,
		AmountDue:      amount,
		Currency:       currency,
		RecipientName:  req.RecipientName,
		RecipientEmail: req.RecipientEmail,
	}
	if req.SenderName != "" {
		exp.SenderName = &req.SenderName
	}
	if req.SenderEmail != "" {
		exp.SenderEmail = &req.SenderEmail
	}
	if err := s.experiences.Create(ctx, exp); err != nil {
		return nil, apperrors.Internal("Failed to create experience", err)
	}

	s.audit.Record(ctx, exp.ID, models.EventExperienceCreated, map[string]interface{}{
		"experience_type": string(expType),
		"currency":        currency,
	})
	recordCount(s.metrics, aws_pkg.MetricExperiencesCreated, map[string]string{"ExperienceType": string(expType)})

	return &models.CreateExperienceResponse{
		ID:             exp.ID.String(),
		ExperienceType: string(expType),
		AmountDue:      amount,
		Currency:       currency,
		AmountDisplay:  models.FormatAmount(amount, currency),
		CreatedAt:      exp.CreatedAt,
	}, nil
}

func (s *experienceService) load(ctx context.Context, id uuid.UUID) (*models.Experience, error) {
	exp, err := s.experiences.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Experience not found")
		}
		return nil, apperrors.Internal("Failed to load experience", err)
	}
	return exp, nil
}

func (s *experienceService) Get(ctx context.Context, id uuid.UUID) (*models.PublicExperience, error) {
	exp, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	public := exp.Public()
	return &public, nil
}

// MarkOpened moves SENT to OPENED once. Any other state is returned unchanged.
func (s *experienceService) MarkOpened(ctx context.Context, id uuid.UUID) (*models.PublicExperience, error) {
	now := s.now()
	moved, err := s.experiences.TransitionState(ctx, id,
		[]models.LifecycleState{models.StateSent}, models.StateOpened,
		map[string]interface{}{"opened_at": now},
	)
	if err != nil {
		return nil, apperrors.Internal("Failed to update experience", err)
	}
	if moved {
		s.audit.Record(ctx, id, models.EventExperienceOpened, nil)
	}
	return s.Get(ctx, id)
}

func (s *experienceService) Respond(ctx context.Context, id uuid.UUID, response models.Response) (*models.PublicExperience, error) {
	if !response.Valid() {
		return nil, apperrors.Validation("response must be YES, GRACEFUL_EXIT or REAFFIRMED")
	}
	exp, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if exp.LifecycleState == models.StateResponded {
		public := exp.Public()
		return &public, nil
	}
	if !exp.LifecycleState.AtLeast(models.StateSent) {
		return nil, apperrors.NotPayableState(fmt.Sprintf("Experience has not been sent (current: %s)", exp.LifecycleState))
	}

	now := s.now()
	moved, err := s.experiences.TransitionState(ctx, id,
		[]models.LifecycleState{models.StateSent, models.StateOpened}, models.StateResponded,
		map[string]interface{}{
			"response":     response,
			"responded_at": now,
			"opened_at":    gorm.Expr("COALESCE(opened_at, ?)", now),
		},
	)
	if err != nil {
		return nil, apperrors.Internal("Failed to record response", err)
	}
	if moved {
		s.audit.Record(ctx, id, models.EventExperienceResponded, map[string]interface{}{"response": string(response)})
	}
	return s.Get(ctx, id)
}

func (s *experienceService) Reply(ctx context.Context, id uuid.UUID, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return apperrors.Validation("message is required")
	}
	if len([]rune(message)) > maxReplyLength {
		return apperrors.Validation(fmt.Sprintf("message must be at most %d characters", maxReplyLength))
	}

	exp, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !exp.LifecycleState.AtLeast(models.StateSent) {
		return apperrors.NotPayableState("Experience has not been sent")
	}

	stored, err := s.experiences.SetReply(ctx, id, message, s.now())
	if err != nil {
		return apperrors.Internal("Failed to save reply", err)
	}
	if !stored {
		return apperrors.Validation("A reply has already been sent")
	}

	emailed := s.emailSenderReply(ctx, exp, message)
	s.audit.Record(ctx, id, models.EventReplySent, map[string]interface{}{"emailed": emailed})
	return nil
}

func (s *experienceService) emailSenderReply(ctx context.Context, exp *models.Experience, message string) bool {
	if exp.SenderEmail == nil || *exp.SenderEmail == "" {
		return false
	}
	data := sender.ReplyEmailData{
		RecipientName: exp.RecipientName,
		ReplyMessage:  message,
	}
	if exp.SenderName != nil {
		data.SenderName = *exp.SenderName
	}
	if exp.Response != nil {
		data.Response = string(*exp.Response)
	}

	msg, err := s.renderer.ReplyEmail(*exp.SenderEmail, data)
	if err != nil {
		s.logger.Error("failed to render reply email", zap.Error(err))
		return false
	}
	if _, err := s.emailSender.SendEmail(ctx, msg); err != nil {
		s.logger.Warn("failed to email reply to sender",
			zap.String("experience_id", exp.ID.String()),
			zap.Error(err),
		)
		return false
	}
	return true
}
