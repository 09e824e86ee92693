package bot

import (
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
)

type fakeRegistrar struct {
	remote     []*discordgo.ApplicationCommand
	overwrites [][]*discordgo.ApplicationCommand
	failClear  bool
}

func (f *fakeRegistrar) ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand, _ ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	if f.failClear && len(commands) == 0 {
		return nil, errors.New("boom")
	}
	f.overwrites = append(f.overwrites, commands)
	f.remote = commands
	return commands, nil
}

func TestResyncClearsThenRegisters(t *testing.T) {
	reg := &fakeRegistrar{remote: []*discordgo.ApplicationCommand{
		{Name: "stale-one"}, {Name: "stale-two"},
	}}
	count, err := resyncCommands(reg, "app")
	if err != nil {
		t.Fatalf("resync: %v", err)
	}
	if want := len(commandDefs()); count != want {
		t.Fatalf("count = %d, want %d", count, want)
	}
	if len(reg.overwrites) != 2 {
		t.Fatalf("overwrite calls = %d, want clear then register", len(reg.overwrites))
	}
	if len(reg.overwrites[0]) != 0 {
		t.Fatalf("first overwrite not a clear: %d commands", len(reg.overwrites[0]))
	}
	if len(reg.remote) != count {
		t.Fatalf("remote commands = %d after resync", len(reg.remote))
	}
}

func TestResyncClearFailure(t *testing.T) {
	reg := &fakeRegistrar{failClear: true}
	if _, err := resyncCommands(reg, "app"); err == nil {
		t.Fatal("expected error when clear fails")
	}
	if len(reg.overwrites) != 0 {
		t.Fatal("registered commands despite failed clear")
	}
}

func TestCommandDefsAdminGated(t *testing.T) {
	for _, def := range commandDefs() {
		if def.Name == "ping" {
			if def.DefaultMemberPermissions != nil {
				t.Error("ping should not be admin gated")
			}
			continue
		}
		if def.DefaultMemberPermissions == nil || *def.DefaultMemberPermissions != discordgo.PermissionManageGuild {
			t.Errorf("%s is not gated on Manage Server", def.Name)
		}
	}
}
