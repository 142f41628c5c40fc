package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/harshit-ig/startup-genie/internal/domain"
)

// Implementaciones en memoria para desarrollo local y tests.
// Devuelven copias para que los llamadores no compartan slices con el store.

type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]domain.User)}
}

func (r *MemoryUserRepository) Create(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; ok {
		return ErrDuplicate
	}
	for _, u := range r.users {
		if u.Email == user.Email {
			return ErrDuplicate
		}
	}
	r.users[user.ID] = user
	return nil
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return domain.User{}, ErrNotFound
	}
	return u, nil
}

func (r *MemoryUserRepository) GetByEmail(_ context.Context, email string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, ErrNotFound
}

func (r *MemoryUserRepository) UpdateProfile(_ context.Context, id, firstName, lastName string) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.User{}, ErrNotFound
	}
	if firstName != "" {
		u.FirstName = firstName
	}
	if lastName != "" {
		u.LastName = lastName
	}
	r.users[id] = u
	return u, nil
}

func (r *MemoryUserRepository) SetResetToken(_ context.Context, id, tokenHash string, expiresAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	u.ResetPasswordToken = tokenHash
	u.ResetPasswordExpire = expiresAt
	if tokenHash == "" {
		u.ResetPasswordExpire = nil
	}
	r.users[id] = u
	return nil
}

func (r *MemoryUserRepository) GetByResetToken(_ context.Context, tokenHash string, now time.Time) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if tokenHash == "" {
		return domain.User{}, ErrNotFound
	}
	for _, u := range r.users {
		if u.ResetPasswordToken == tokenHash && u.ResetPasswordExpire != nil && u.ResetPasswordExpire.After(now) {
			return u, nil
		}
	}
	return domain.User{}, ErrNotFound
}

func (r *MemoryUserRepository) UpdatePassword(_ context.Context, id, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.ResetPasswordToken = ""
	u.ResetPasswordExpire = nil
	r.users[id] = u
	return nil
}

type MemoryPromptRepository struct {
	mu      sync.Mutex
	prompts map[string]domain.Prompt
}

func NewMemoryPromptRepository() *MemoryPromptRepository {
	return &MemoryPromptRepository{prompts: make(map[string]domain.Prompt)}
}

func (r *MemoryPromptRepository) Create(_ context.Context, prompt domain.Prompt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.prompts[prompt.ID]; ok {
		return ErrDuplicate
	}
	r.prompts[prompt.ID] = prompt
	return nil
}

func (r *MemoryPromptRepository) GetByID(_ context.Context, id string) (domain.Prompt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.prompts[id]
	if !ok {
		return domain.Prompt{}, ErrNotFound
	}
	return p, nil
}

func (r *MemoryPromptRepository) ClaimNextPending(_ context.Context, responseID string, now time.Time) (domain.Prompt, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pending := make([]domain.Prompt, 0)
	for _, p := range r.prompts {
		if !p.Processed && !p.Processing {
			pending = append(pending, p)
		}
	}
	if len(pending) == 0 {
		return domain.Prompt{}, false, nil
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	p := pending[0]
	p.Processing = true
	p.ResponseID = responseID
	processedAt := now
	p.ProcessedAt = &processedAt
	r.prompts[p.ID] = p
	return p, true, nil
}

func (r *MemoryPromptRepository) MarkProcessed(_ context.Context, id string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.prompts[id]
	if !ok {
		return ErrNotFound
	}
	p.Processed = true
	p.Processing = false
	if p.ProcessedAt == nil {
		processedAt := now
		p.ProcessedAt = &processedAt
	}
	r.prompts[id] = p
	return nil
}

type MemoryResponseRepository struct {
	mu        sync.Mutex
	responses map[string]domain.Response
}

func NewMemoryResponseRepository() *MemoryResponseRepository {
	return &MemoryResponseRepository{responses: make(map[string]domain.Response)}
}

func (r *MemoryResponseRepository) Create(_ context.Context, response domain.Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.responses[response.ID]; ok {
		return ErrDuplicate
	}
	response.Tokens = append([]string{}, response.Tokens...)
	r.responses[response.ID] = response
	return nil
}

func (r *MemoryResponseRepository) GetByID(_ context.Context, id string) (domain.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	resp, ok := r.responses[id]
	if !ok {
		return domain.Response{}, ErrNotFound
	}
	resp.Tokens = append([]string{}, resp.Tokens...)
	return resp, nil
}

func (r *MemoryResponseRepository) AppendToken(_ context.Context, id, token string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	resp, ok := r.responses[id]
	if !ok || resp.Complete {
		return ErrNotFound
	}
	resp.Tokens = append(resp.Tokens, token)
	resp.UpdatedAt = now
	r.responses[id] = resp
	return nil
}

func (r *MemoryResponseRepository) Complete(_ context.Context, id, fullResponse string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	resp, ok := r.responses[id]
	if !ok {
		return ErrNotFound
	}
	resp.Complete = true
	resp.FullResponse = fullResponse
	resp.UpdatedAt = now
	r.responses[id] = resp
	return nil
}

func (r *MemoryResponseRepository) Fail(_ context.Context, id, errText string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	resp, ok := r.responses[id]
	if !ok {
		return ErrNotFound
	}
	resp.Complete = true
	resp.Error = errText
	resp.UpdatedAt = now
	r.responses[id] = resp
	return nil
}

type MemoryChatHistoryRepository struct {
	mu        sync.Mutex
	histories map[string]domain.ChatHistory
}

func NewMemoryChatHistoryRepository() *MemoryChatHistoryRepository {
	return &MemoryChatHistoryRepository{histories: make(map[string]domain.ChatHistory)}
}

func (r *MemoryChatHistoryRepository) GetOrCreate(_ context.Context, userID string, now time.Time) (domain.ChatHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.histories[userID]
	if !ok {
		h = domain.ChatHistory{
			ID:        domain.NewID(),
			UserID:    userID,
			Messages:  []domain.ChatMessage{},
			CreatedAt: now,
			UpdatedAt: now,
		}
		r.histories[userID] = h
	}
	h.Messages = append([]domain.ChatMessage{}, h.Messages...)
	return h, nil
}

func (r *MemoryChatHistoryRepository) Save(_ context.Context, history domain.ChatHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.histories[history.UserID]; ok {
		if history.ID == "" {
			history.ID = existing.ID
		}
		if history.CreatedAt.IsZero() {
			history.CreatedAt = existing.CreatedAt
		}
	}
	history.Messages = append([]domain.ChatMessage{}, history.Messages...)
	r.histories[history.UserID] = history
	return nil
}
