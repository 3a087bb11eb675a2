package devserver

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"client_go/internal/domain"
	"client_go/internal/store"
)

// SeedPassword is the password of every seeded account.
const SeedPassword = "password"

var seedUsers = []struct{ username, name, bio string }{
	{"alice", "Alice Cooper", "Keeps the lights on."},
	{"bob", "Bob Marley", ""},
	{"carol", "Carol King", "Writes the release notes."},
	{"dave", "Dave Grohl", ""},
}

// Seed creates demo accounts and a channel. It does nothing when alice
// already exists.
func (s *Server) Seed(ctx context.Context) error {
	if _, err := s.store.UserByUsername(ctx, seedUsers[0].username); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("seed: %w", err)
	}

	hashed, err := s.hasher.Hash(SeedPassword)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	ids := make([]string, 0, len(seedUsers))
	for _, su := range seedUsers {
		u := &store.UserRecord{
			User:           domain.User{Name: su.name, Bio: su.bio, Email: su.username + "@zchat.local"},
			Username:       su.username,
			HashedPassword: hashed,
		}
		if err := s.store.CreateUser(ctx, u); err != nil {
			return fmt.Errorf("seed user %s: %w", su.username, err)
		}
		ids = append(ids, u.ID)
	}

	general, err := s.store.CreateChannel(ctx, "general", "Company-wide announcements", ids[0], ids[1:]...)
	if err != nil {
		return fmt.Errorf("seed channel: %w", err)
	}
	if _, err := s.store.CreateChannel(ctx, "random", "Off-topic", ids[1], ids[0], ids[2]); err != nil {
		return fmt.Errorf("seed channel: %w", err)
	}

	welcome, err := s.cipher.Seal("Welcome to zChat!")
	if err != nil {
		return fmt.Errorf("seed message: %w", err)
	}
	if err := s.store.CreateMessage(ctx, &store.MessageRecord{ChannelID: general.ID, SenderID: ids[0], Content: welcome}); err != nil {
		return fmt.Errorf("seed message: %w", err)
	}

	s.log.Info("seeded", zap.Int("users", len(ids)), zap.String("password", SeedPassword))
	return nil
}
