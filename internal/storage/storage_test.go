package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"moe-bot/internal/settings"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
)

func TestOpenCreatesEmptyDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "guild_config.json")

	store, err := Open(path, zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if ids := store.GuildIDs(); len(ids) != 0 {
		t.Fatalf("expected empty collection, got %v", ids)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.TrimSpace(string(data)) != "{}" {
		t.Fatalf("expected {}, got %q", data)
	}
}

func TestLoadEmptyObjectThenFirstGuild(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guild_config.json")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store, err := Open(path, zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.Saves() != 0 {
		t.Fatalf("loading {} must not rewrite the file")
	}

	if err := store.Update(func(c settings.Collection) bool { return c.Ensure("42", "") }); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	guild, ok := store.Guild("42")
	if !ok {
		t.Fatalf("guild 42 missing")
	}
	if !guild.Greetings {
		t.Fatalf("expected greetings enabled")
	}
	if guild.WelcomeChannel.Template.User != settings.DefaultWelcomeUser {
		t.Fatalf("unexpected welcome template %q", guild.WelcomeChannel.Template.User)
	}
	if guild.GoodbyeChannel.Template.Bot != settings.DefaultGoodbyeBot {
		t.Fatalf("unexpected goodbye template %q", guild.GoodbyeChannel.Template.Bot)
	}
	if len(guild.ReactionRoles) != 0 || guild.HoneyPot.Enabled() {
		t.Fatalf("expected empty reaction roles and honeypot")
	}
}

func TestUpdateSavesOnlyOnChange(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "settings.json"), zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	before := store.Saves()

	if err := store.Update(func(c settings.Collection) bool { return false }); err != nil {
		t.Fatalf("update: %v", err)
	}
	if store.Saves() != before {
		t.Fatalf("unchanged update must not save")
	}
	if err := store.Update(func(c settings.Collection) bool { return c.Ensure("1", "") }); err != nil {
		t.Fatalf("update: %v", err)
	}
	if store.Saves() != before+1 {
		t.Fatalf("expected one save, got %d", store.Saves()-before)
	}
}

func TestRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	store, err := Open(path, zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	err = store.Update(func(c settings.Collection) bool {
		c.Ensure("42", "123456789012345678")
		c.Bind("42", "7", "99", "✅", "501")
		c.Bind("42", "7", "99", "<:haro:1326811765928890450>", "502")
		c.SetSource("42", "7", "99", `{"content":"pick"}`)
		c["42"].HoneyPot = settings.HoneyPot{ChannelID: "8", AllowOwner: true}
		c["42"].AutoRoles.Bots = []string{"600"}
		return true
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	for _, entry := range entries {
		if strings.Contains(entry.Name(), ".tmp.") {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}

	raw, _ := os.ReadFile(path)
	if !strings.Contains(string(raw), "<:haro:1326811765928890450>") {
		t.Fatalf("custom emoji key should be written unescaped:\n%s", raw)
	}

	reopened, err := Open(path, zap.NewNop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	want, _ := store.Guild("42")
	got, _ := reopened.Guild("42")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("roundtrip mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenUpgradesLegacyDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	legacy := `{"42": {"reaction_roles": {"7": {}}, "honey_pot": {}}}`
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	store, err := Open(path, zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.Saves() != 1 {
		t.Fatalf("expected upgraded document to be saved once, got %d", store.Saves())
	}
	guild, _ := store.Guild("42")
	if _, ok := guild.ReactionRoles["7"]; ok {
		t.Fatalf("empty channel node should be pruned")
	}
	if guild.WelcomeChannel.Template.User == "" {
		t.Fatalf("missing template should be filled")
	}
}

func TestOpenRejectsCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Open(path, zap.NewNop()); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestAuditLogs(t *testing.T) {
	db, err := NewAuditDB(":memory:")
	if err != nil {
		t.Fatalf("new audit db: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate twice: %v", err)
	}

	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	old := AuditLog{GuildID: "g1", Level: "INFO", Event: "old", CreatedAt: now.AddDate(0, 0, -40)}
	fresh := AuditLog{GuildID: "g1", UserID: "u1", Level: "CRIT", Event: "honeypot_ban", CreatedAt: now}
	for _, entry := range []AuditLog{old, fresh} {
		if err := db.AddAuditLog(ctx, entry); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	logs, err := db.ListAuditLogs(ctx, "g1", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(logs) != 1 || logs[0].Event != "honeypot_ban" {
		t.Fatalf("unexpected logs %+v", logs)
	}

	removed, err := db.CleanupAuditLogs(ctx, now, 30)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
}

func TestInfractions(t *testing.T) {
	db, err := NewAuditDB(":memory:")
	if err != nil {
		t.Fatalf("new audit db: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	for i := 0; i < 2; i++ {
		if _, err := db.IncrementInfraction(ctx, "g1", "u1", "honeypot", "ban", now); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	count, err := db.IncrementInfraction(ctx, "g1", "u2", "honeypot", "ban_failed", now)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1, got %d", count)
	}

	inf, err := db.GetInfraction(ctx, "g1", "u1", "honeypot")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if inf.CountTotal != 2 || inf.LastAction != "ban" {
		t.Fatalf("unexpected infraction %+v", inf)
	}
}
