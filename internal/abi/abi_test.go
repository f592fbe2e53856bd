package abi

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuelarogbonlo/dot-escrow/internal/ss58"
)

const (
	alice    = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
	aliceHex = "d43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d"
	bob      = "5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty"
)

func loadEscrow(t *testing.T) *Contract {
	t.Helper()
	c, err := Escrow()
	require.NoError(t, err)
	c.AddressPrefix = 42
	return c
}

func TestEscrowMetadata(t *testing.T) {
	c := loadEscrow(t)
	assert.Equal(t, "escrow_contract", c.Name)

	for _, label := range []string{
		"create_escrow", "get_escrow", "list_escrows", "update_escrow_status",
		"update_escrow_milestone_status", "release_milestone", "dispute_milestone",
		"notify_counterparty", "submit_proposal", "approve_proposal", "execute_proposal",
		"get_proposal", "get_proposal_counter", "is_admin_signer", "get_admin_signers",
		"get_signature_threshold",
	} {
		m, err := c.Message(label)
		require.NoError(t, err, label)
		assert.GreaterOrEqual(t, m.ReturnType, 0, label)
	}

	m, err := c.Message("get_escrow")
	require.NoError(t, err)
	assert.Equal(t, "0x5d715835", HexSelector(m.Selector))
	assert.False(t, m.Mutates)

	ev, ok := c.EventBySignature(c.Events()[0].SignatureTopic)
	require.True(t, ok)
	assert.Equal(t, "EscrowCreated", ev.Label)
	assert.Equal(t, []string{"escrow_id", "creator"}, ev.Topics)
}

func TestEncodeCall(t *testing.T) {
	c := loadEscrow(t)

	tests := []struct {
		name  string
		label string
		args  []any
		want  string
	}{
		{
			name:  "string argument",
			label: "get_escrow",
			args:  []any{"escrow_1"},
			want:  "5d715835" + "20" + hex.EncodeToString([]byte("escrow_1")),
		},
		{
			name:  "no arguments",
			label: "get_proposal_counter",
			want:  "a68c55ad",
		},
		{
			name:  "account id from ss58",
			label: "is_admin_signer",
			args:  []any{alice},
			want:  "274f6689" + aliceHex,
		},
		{
			name:  "u64 argument",
			label: "approve_proposal",
			args:  []any{uint64(7)},
			want:  "1a430fd0" + "0700000000000000",
		},
		{
			name:  "unit variant",
			label: "update_escrow_status",
			args:  []any{"e", "Completed"},
			want:  "bf219b52" + "0465" + "01",
		},
		{
			name:  "variant with one field",
			label: "submit_proposal",
			args:  []any{map[string]any{"SetFee": 250}},
			want:  "c4d32d79" + "00" + "fa00",
		},
		{
			name:  "variant with two fields",
			label: "submit_proposal",
			args:  []any{map[string]any{"EmergencyWithdraw": []any{alice, "1,000,000"}}},
			want:  "c4d32d79" + "06" + aliceHex + "40420f00000000000000000000000000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.EncodeCall(tt.label, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, hex.EncodeToString(got))
		})
	}
}

func TestEncodeCall_Struct(t *testing.T) {
	c := loadEscrow(t)

	type milestone struct {
		ID             string  `json:"id"`
		Description    string  `json:"description"`
		Amount         string  `json:"amount"`
		Status         string  `json:"status"`
		Deadline       int64   `json:"deadline"`
		CompletedAt    *int64  `json:"completed_at"`
		DisputeReason  *string `json:"dispute_reason"`
		DisputeFiledBy *string `json:"dispute_filed_by"`
	}

	data, err := c.EncodeCall("create_escrow",
		bob, "freelancer", "Active", "Logo", "Design a logo", "100",
		[]milestone{{ID: "m1", Description: "draft", Amount: "100", Status: "Pending", Deadline: 1_700_000_000_000}},
		nil,
	)
	require.NoError(t, err)

	m, _ := c.Message("create_escrow")
	assert.Equal(t, m.Selector[:], data[:4])
	// trailing Option<String> None
	assert.Equal(t, byte(0), data[len(data)-1])
}

func TestEncodeCall_Errors(t *testing.T) {
	c := loadEscrow(t)

	_, err := c.EncodeCall("withdraw_everything")
	assert.ErrorIs(t, err, ErrUnknownMessage)

	_, err = c.EncodeCall("get_escrow")
	assert.ErrorIs(t, err, ErrArgumentCount)

	_, err = c.EncodeCall("is_admin_signer", "not-an-address")
	var argErr *ArgError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "account", argErr.Arg)
	assert.ErrorIs(t, err, ss58.ErrInvalidAddress)

	_, err = c.EncodeCall("update_escrow_status", "e", "Exploded")
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = c.EncodeCall("submit_proposal", map[string]any{"SetFee": 70000})
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestDecodeReturn(t *testing.T) {
	c := loadEscrow(t)

	got, err := c.DecodeReturn("get_proposal_counter", []byte{0, 3, 0, 0, 0, 0, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"Ok": uint64(3)}, got)

	// Ok(Err(EscrowNotFound))
	got, err = c.DecodeReturn("get_escrow", []byte{0, 1, 0})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"Ok": map[string]any{"Err": "EscrowNotFound"}}, got)

	// Err(CouldNotReadInput)
	got, err = c.DecodeReturn("get_escrow", []byte{1, 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"Err": "CouldNotReadInput"}, got)

	// Ok(Ok(()))
	got, err = c.DecodeReturn("release_milestone", []byte{0, 0})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"Ok": map[string]any{"Ok": nil}}, got)

	_, err = c.DecodeReturn("get_proposal_counter", []byte{0, 3})
	assert.Error(t, err)

	_, err = c.DecodeReturn("get_proposal_counter", []byte{0, 3, 0, 0, 0, 0, 0, 0, 0, 9})
	assert.ErrorIs(t, err, ErrTrailingBytes)
}

func TestEncodeReturn_EscrowEnvelope(t *testing.T) {
	c := loadEscrow(t)

	escrow := map[string]any{
		"id":                   "escrow_4",
		"creator_address":      alice,
		"counterparty_address": bob,
		"counterparty_type":    "client",
		"title":                "Site",
		"description":          "Build a site",
		"total_amount":         "250",
		"status":               "Active",
		"created_at":           uint64(1_700_000_000_000),
		"milestones": []any{map[string]any{
			"id": "m1", "description": "mockups", "amount": "250", "status": "InProgress",
			"deadline": uint64(1_700_000_500_000), "completed_at": nil, "dispute_reason": nil,
			"dispute_filed_by": alice,
		}},
		"transaction_hash": nil,
	}

	data, err := c.EncodeReturn("get_escrow", map[string]any{"Ok": map[string]any{"Ok": escrow}})
	require.NoError(t, err)

	got, err := c.DecodeReturn("get_escrow", data)
	require.NoError(t, err)

	outer := got.(map[string]any)["Ok"].(map[string]any)
	decoded := outer["Ok"].(map[string]any)
	assert.Equal(t, "escrow_4", decoded["id"])
	assert.Equal(t, alice, decoded["creator_address"])
	assert.Equal(t, "Active", decoded["status"])
	milestones := decoded["milestones"].([]any)
	require.Len(t, milestones, 1)
	m := milestones[0].(map[string]any)
	assert.Equal(t, "InProgress", m["status"])
	assert.Nil(t, m["completed_at"])
	assert.Equal(t, alice, m["dispute_filed_by"])
}

func TestDecodeProposal(t *testing.T) {
	c := loadEscrow(t)

	proposal := map[string]any{
		"id":          uint64(2),
		"action":      map[string]any{"EmergencyWithdraw": []any{bob, "5000"}},
		"created_by":  alice,
		"created_at":  uint64(1_700_000_000_000),
		"approvals":   []any{alice, bob},
		"executed":    false,
		"executed_at": nil,
	}
	data, err := c.EncodeReturn("get_proposal", map[string]any{"Ok": proposal})
	require.NoError(t, err)

	got, err := c.DecodeReturn("get_proposal", data)
	require.NoError(t, err)

	p := got.(map[string]any)["Ok"].(map[string]any)
	assert.Equal(t, map[string]any{"EmergencyWithdraw": []any{bob, "5000"}}, p["action"])
	assert.Equal(t, []any{alice, bob}, p["approvals"])
	assert.Equal(t, false, p["executed"])
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load([]byte(`{`))
	assert.Error(t, err)

	_, err = Load([]byte(`{"spec":{"messages":[]}}`))
	assert.Error(t, err)

	_, err = Load([]byte(`{"spec":{"messages":[{"label":"x","selector":"0x01","args":[]}]}}`))
	assert.Error(t, err)

	_, err = Load([]byte(`{"spec":{"messages":[{"label":"x","selector":"0x01020304","args":[],"returnType":{"type":9}}]},"types":[]}`))
	assert.ErrorIs(t, err, ErrUnknownType)
}
