package domain

import "testing"

func TestBotStatus_Valid(t *testing.T) {
	for _, status := range []BotStatus{StatusPending, StatusActive, StatusError} {
		if !status.Valid() {
			t.Errorf("Expected %s to be valid", status)
		}
	}
	if BotStatus("RUNNING").Valid() {
		t.Error("Expected unknown status to be invalid")
	}
}

func TestParsePersona(t *testing.T) {
	raw := `{
		"system_prompt": "You are Dog Coin bot.",
		"traits": ["loyal", "playful"],
		"tone": "excited",
		"forbidden_topics": ["price predictions"]
	}`

	p, err := ParsePersona(raw)
	if err != nil {
		t.Fatalf("ParsePersona failed: %v", err)
	}
	if p.SystemPrompt != "You are Dog Coin bot." {
		t.Errorf("Expected system prompt preserved, got %q", p.SystemPrompt)
	}
	if len(p.Traits) != 2 || p.Traits[0] != "loyal" {
		t.Errorf("Expected traits in order, got %v", p.Traits)
	}
	if len(p.AllowedTopics) != 0 {
		t.Errorf("Expected no allowed topics, got %v", p.AllowedTopics)
	}
}

func TestParsePersona_Invalid(t *testing.T) {
	if _, err := ParsePersona("{truncated"); err == nil {
		t.Error("Expected error for malformed persona JSON")
	}
}

func TestBotRecord_IsActive(t *testing.T) {
	bot := &BotRecord{TokenMint: "MintA", Status: StatusActive}
	if !bot.IsActive() {
		t.Error("Expected ACTIVE record to be active")
	}
	bot.Status = StatusError
	if bot.IsActive() {
		t.Error("Expected ERROR record to be inactive")
	}
}
