package repository

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/harshit-ig/startup-genie/internal/domain"
)

// Documentos con los nombres de campos que usan las colecciones existentes.

type userDoc struct {
	ID                  primitive.ObjectID `bson:"_id"`
	Name                string             `bson:"name"`
	FirstName           string             `bson:"firstName"`
	LastName            string             `bson:"lastName"`
	Email               string             `bson:"email"`
	Password            string             `bson:"password"`
	ResetPasswordToken  string             `bson:"resetPasswordToken,omitempty"`
	ResetPasswordExpire *time.Time         `bson:"resetPasswordExpire,omitempty"`
	CreatedAt           time.Time          `bson:"createdAt"`
}

type promptDoc struct {
	ID          primitive.ObjectID  `bson:"_id"`
	UserID      primitive.ObjectID  `bson:"user_id"`
	Message     string              `bson:"message"`
	Processed   bool                `bson:"processed"`
	Processing  bool                `bson:"processing"`
	ResponseID  *primitive.ObjectID `bson:"response_id,omitempty"`
	CreatedAt   time.Time           `bson:"created_at"`
	ProcessedAt *time.Time          `bson:"processed_at,omitempty"`
}

type responseDoc struct {
	ID           primitive.ObjectID `bson:"_id"`
	UserID       primitive.ObjectID `bson:"user_id"`
	Tokens       []string           `bson:"tokens"`
	Complete     bool               `bson:"complete"`
	Error        *string            `bson:"error"`
	FullResponse string             `bson:"full_response,omitempty"`
	CreatedAt    time.Time          `bson:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at"`
}

type chatMessageDoc struct {
	Role      string    `bson:"role"`
	Content   string    `bson:"content"`
	Timestamp time.Time `bson:"timestamp"`
}

type chatHistoryDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	UserID    primitive.ObjectID `bson:"user_id"`
	Messages  []chatMessageDoc   `bson:"messages"`
	CreatedAt time.Time          `bson:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

// objectID convierte un id hex; un id mal formado se trata como inexistente.
func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, ErrNotFound
	}
	return oid, nil
}

func (d userDoc) toDomain() domain.User {
	return domain.User{
		ID:                  d.ID.Hex(),
		Name:                d.Name,
		FirstName:           d.FirstName,
		LastName:            d.LastName,
		Email:               d.Email,
		PasswordHash:        d.Password,
		ResetPasswordToken:  d.ResetPasswordToken,
		ResetPasswordExpire: d.ResetPasswordExpire,
		CreatedAt:           d.CreatedAt,
	}
}

func (d promptDoc) toDomain() domain.Prompt {
	p := domain.Prompt{
		ID:          d.ID.Hex(),
		UserID:      d.UserID.Hex(),
		Message:     d.Message,
		Processed:   d.Processed,
		Processing:  d.Processing,
		CreatedAt:   d.CreatedAt,
		ProcessedAt: d.ProcessedAt,
	}
	if d.ResponseID != nil && !d.ResponseID.IsZero() {
		p.ResponseID = d.ResponseID.Hex()
	}
	return p
}

func (d responseDoc) toDomain() domain.Response {
	r := domain.Response{
		ID:           d.ID.Hex(),
		UserID:       d.UserID.Hex(),
		Tokens:       d.Tokens,
		Complete:     d.Complete,
		FullResponse: d.FullResponse,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	if r.Tokens == nil {
		r.Tokens = []string{}
	}
	if d.Error != nil {
		r.Error = *d.Error
	}
	return r
}

func (d chatHistoryDoc) toDomain() domain.ChatHistory {
	h := domain.ChatHistory{
		ID:        d.ID.Hex(),
		UserID:    d.UserID.Hex(),
		Messages:  make([]domain.ChatMessage, 0, len(d.Messages)),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	for _, m := range d.Messages {
		h.Messages = append(h.Messages, domain.ChatMessage{Role: m.Role, Content: m.Content, Timestamp: m.Timestamp})
	}
	return h
}

func chatMessageDocs(msgs []domain.ChatMessage) []chatMessageDoc {
	out := make([]chatMessageDoc, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, chatMessageDoc{Role: m.Role, Content: m.Content, Timestamp: m.Timestamp})
	}
	return out
}
