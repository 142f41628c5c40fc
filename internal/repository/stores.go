package repository

import (
	"context"
	"fmt"

	"github.com/harshit-ig/startup-genie/internal/db"
)

// StoreOptions elige el backend de persistencia.
type StoreOptions struct {
	Driver        string // postgres | mongo | memory
	DatabaseURL   string
	MongoURL      string
	MongoDatabase string
}

// Stores agrupa los repositorios de un backend.
type Stores struct {
	Users     UserRepository
	Prompts   PromptRepository
	Responses ResponseRepository
	Histories ChatHistoryRepository

	ping  func(ctx context.Context) error
	close func()
}

// Ping verifica la conexion con el backend.
func (s *Stores) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

// Close libera las conexiones.
func (s *Stores) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenStores conecta al backend elegido y prepara schema o indices.
func OpenStores(ctx context.Context, opts StoreOptions) (*Stores, error) {
	switch opts.Driver {
	case "postgres":
		pool, err := db.NewPool(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		if err := db.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return &Stores{
			Users:     NewPgUserRepository(pool),
			Prompts:   NewPgPromptRepository(pool),
			Responses: NewPgResponseRepository(pool),
			Histories: NewPgChatHistoryRepository(pool),
			ping:      func(ctx context.Context) error { return db.Ping(ctx, pool) },
			close:     pool.Close,
		}, nil

	case "mongo":
		client, database, err := db.NewMongo(ctx, opts.MongoURL, opts.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := db.EnsureMongoIndexes(ctx, database); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		return &Stores{
			Users:     NewMongoUserRepository(database),
			Prompts:   NewMongoPromptRepository(database),
			Responses: NewMongoResponseRepository(database),
			Histories: NewMongoChatHistoryRepository(database),
			ping:      func(ctx context.Context) error { return client.Ping(ctx, nil) },
			close:     func() { _ = client.Disconnect(context.Background()) },
		}, nil

	case "memory":
		return &Stores{
			Users:     NewMemoryUserRepository(),
			Prompts:   NewMemoryPromptRepository(),
			Responses: NewMemoryResponseRepository(),
			Histories: NewMemoryChatHistoryRepository(),
		}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}
