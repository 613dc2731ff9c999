package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Infraction counts how often a user tripped one moderation category.
type Infraction struct {
	GuildID    string
	UserID     string
	Category   string
	CountTotal int
	LastAt     time.Time
	LastAction string
}

func (a *AuditDB) GetInfraction(ctx context.Context, guildID, userID, category string) (Infraction, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT guild_id, user_id, category, count_total, last_at, COALESCE(last_action, '')
		FROM user_infractions
		WHERE guild_id = ? AND user_id = ? AND category = ?
	`, guildID, userID, category)

	var inf Infraction
	var lastAt int64
	err := row.Scan(&inf.GuildID, &inf.UserID, &inf.Category, &inf.CountTotal, &lastAt, &inf.LastAction)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Infraction{}, nil
		}
		return Infraction{}, err
	}
	inf.LastAt = time.Unix(lastAt, 0)
	return inf, nil
}

// IncrementInfraction bumps the user's counter and returns the new total.
func (a *AuditDB) IncrementInfraction(ctx context.Context, guildID, userID, category, lastAction string, now time.Time) (int, error) {
	var count int
	err := a.db.QueryRowContext(ctx, `
		INSERT INTO user_infractions (guild_id, user_id, category, count_total, last_at, last_action)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(guild_id, user_id, category) DO UPDATE SET
			count_total = user_infractions.count_total + 1,
			last_at = excluded.last_at,
			last_action = excluded.last_action
		RETURNING count_total
	`, guildID, userID, category, now.Unix(), lastAction).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
