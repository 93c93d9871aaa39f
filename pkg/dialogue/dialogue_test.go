package dialogue

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/questforge/dialogue-engine/pkg/state"
)

func TestTurnRequest_Validate(t *testing.T) {
	valid := TurnRequest{
		SessionID: "s-1",
		NPCID:     "npc_001",
		UserInput: "hello",
		Context:   &state.Snapshot{},
	}

	tests := []struct {
		name    string
		mutate  func(r *TurnRequest)
		wantErr string
	}{
		{"valid", func(r *TurnRequest) {}, ""},
		{"missing session", func(r *TurnRequest) { r.SessionID = "" }, "session_id is required"},
		{"missing npc", func(r *TurnRequest) { r.NPCID = "" }, "npc_id is required"},
		{"missing input", func(r *TurnRequest) { r.UserInput = "" }, "user_input is required"},
		{"missing context", func(r *TurnRequest) { r.Context = nil }, "context is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			err := req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.EqualError(t, err, tt.wantErr)
			}
		})
	}
}
