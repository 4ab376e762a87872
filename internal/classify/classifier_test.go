package classify

import (
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pumpfeed/internal/geyser"
)

var (
	sigBytes     = []byte("transaction-signature-bytes-0000000001")
	creatorBytes = []byte("creator-public-key-bytes-00000001")
)

// buildUpdate assembles a well-formed transaction update that tests then
// mutate into the shape under test.
func buildUpdate(logs []string, pre, post []geyser.TokenBalance) *geyser.Update {
	return &geyser.Update{
		Transaction: &geyser.TransactionUpdate{
			Slot: 12345,
			Transaction: &geyser.TransactionInfo{
				Signature: sigBytes,
				Transaction: &geyser.Transaction{
					Signatures: [][]byte{sigBytes},
					Message: &geyser.Message{
						AccountKeys: [][]byte{creatorBytes, []byte("second-account-key-bytes-0000001")},
					},
				},
				Meta: &geyser.TransactionMeta{
					LogMessages:       logs,
					PreTokenBalances:  pre,
					PostTokenBalances: post,
				},
			},
		},
	}
}

func createLogs() []string {
	return []string{
		"Program " + PumpFunProgram + " invoke [1]",
		"Program log: Instruction: Create",
		"Program " + PumpFunProgram + " success",
	}
}

func balances(mints ...string) []geyser.TokenBalance {
	out := make([]geyser.TokenBalance, 0, len(mints))
	for i, m := range mints {
		out = append(out, geyser.TokenBalance{AccountIndex: i, Mint: m, Owner: "owner"})
	}
	return out
}

func TestClassify_CreateTransaction(t *testing.T) {
	c := New()

	u := buildUpdate(createLogs(), nil, balances("AbCDeF123456789pump"))
	ev := c.Classify(u)
	require.NotNil(t, ev)

	assert.Equal(t, base58.Encode(sigBytes), ev.Signature)
	assert.Equal(t, "AbCDeF123456789pump", ev.MintAddress)
	assert.Equal(t, base58.Encode(creatorBytes), ev.CreatorAddress)
	assert.Equal(t, uint64(12345), ev.Slot)
}

func TestClassify_NonTransactionUpdate(t *testing.T) {
	c := New()

	assert.Nil(t, c.Classify(nil))
	assert.Nil(t, c.Classify(&geyser.Update{}))
	assert.Nil(t, c.Classify(&geyser.Update{Transaction: &geyser.TransactionUpdate{Slot: 1}}))
}

func TestClassify_LogMatching(t *testing.T) {
	c := New()

	tests := []struct {
		name  string
		logs  []string
		match bool
	}{
		{
			name:  "create on target program",
			logs:  createLogs(),
			match: true,
		},
		{
			name: "program address missing",
			logs: []string{
				"Program SomeOtherProgram1111111111111111111111111 invoke [1]",
				"Program log: Instruction: Create",
			},
			match: false,
		},
		{
			name: "unrelated instruction only",
			logs: []string{
				"Program " + PumpFunProgram + " invoke [1]",
				"Program log: Instruction: Swap",
			},
			match: false,
		},
		{
			name: "create v2 only",
			logs: []string{
				"Program " + PumpFunProgram + " invoke [1]",
				"Program log: Instruction: CreateV2",
			},
			match: true,
		},
		{
			name: "create and create v2 in one batch",
			logs: []string{
				"Program " + PumpFunProgram + " invoke [1]",
				"Program log: Instruction: Create",
				"Program log: Instruction: CreateV2",
			},
			match: true,
		},
		{
			name:  "empty logs",
			logs:  nil,
			match: false,
		},
		{
			name: "invalid utf8 in logs",
			logs: []string{
				"Program " + PumpFunProgram + " invoke [1]",
				"Program log: Instruction: Create " + string([]byte{0xff, 0xfe}),
			},
			match: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := buildUpdate(tt.logs, nil, balances("NewMintaaaaaaaaaaaaaaaaaaaaaaapump"))
			ev := c.Classify(u)
			if tt.match {
				assert.NotNil(t, ev)
			} else {
				assert.Nil(t, ev)
			}
		})
	}
}

func TestClassify_MintExtraction(t *testing.T) {
	c := New()

	t.Run("mint present before execution is never selected", func(t *testing.T) {
		u := buildUpdate(createLogs(),
			balances("OldMintbbbbbbbbbbbbbbbbbbbbbbbbpump"),
			balances("OldMintbbbbbbbbbbbbbbbbbbbbbbbbpump"))
		assert.Nil(t, c.Classify(u))
	})

	t.Run("suffix preference overrides encounter order", func(t *testing.T) {
		u := buildUpdate(createLogs(), nil,
			balances("XYZMintcccccccccccccccccccccccccccc", "ABCMintdddddddddddddddddddddddpump"))
		ev := c.Classify(u)
		require.NotNil(t, ev)
		assert.Equal(t, "ABCMintdddddddddddddddddddddddpump", ev.MintAddress)
	})

	t.Run("first candidate wins without suffix match", func(t *testing.T) {
		u := buildUpdate(createLogs(), nil,
			balances("FirstMinteeeeeeeeeeeeeeeeeeeeeeeeee", "SecondMintffffffffffffffffffffffffff"))
		ev := c.Classify(u)
		require.NotNil(t, ev)
		assert.Equal(t, "FirstMinteeeeeeeeeeeeeeeeeeeeeeeeee", ev.MintAddress)
	})

	t.Run("system placeholder is skipped", func(t *testing.T) {
		u := buildUpdate(createLogs(), nil,
			balances(systemPlaceholder, "RealMintgggggggggggggggggggggggpump"))
		ev := c.Classify(u)
		require.NotNil(t, ev)
		assert.Equal(t, "RealMintgggggggggggggggggggggggpump", ev.MintAddress)
	})

	t.Run("no new mint yields no event", func(t *testing.T) {
		u := buildUpdate(createLogs(),
			balances("KnownMinthhhhhhhhhhhhhhhhhhhhhhhhhh"),
			balances("KnownMinthhhhhhhhhhhhhhhhhhhhhhhhhh", systemPlaceholder))
		assert.Nil(t, c.Classify(u))
	})

	t.Run("empty post balances yields no event", func(t *testing.T) {
		u := buildUpdate(createLogs(), nil, nil)
		assert.Nil(t, c.Classify(u))
	})
}

func TestClassify_SignatureExtraction(t *testing.T) {
	c := New()

	t.Run("direct signature preferred", func(t *testing.T) {
		u := buildUpdate(createLogs(), nil, balances("MintJJJJJJJJJJJJJJJJJJJJJJJJJJJpump"))
		other := []byte("a-different-signature-in-the-list1")
		u.Transaction.Transaction.Transaction.Signatures = [][]byte{other}
		ev := c.Classify(u)
		require.NotNil(t, ev)
		assert.Equal(t, base58.Encode(sigBytes), ev.Signature)
	})

	t.Run("falls back to first of signature list", func(t *testing.T) {
		u := buildUpdate(createLogs(), nil, balances("MintJJJJJJJJJJJJJJJJJJJJJJJJJJJpump"))
		u.Transaction.Transaction.Signature = nil
		ev := c.Classify(u)
		require.NotNil(t, ev)
		assert.Equal(t, base58.Encode(sigBytes), ev.Signature)
	})

	t.Run("no signature at all yields no event", func(t *testing.T) {
		u := buildUpdate(createLogs(), nil, balances("MintJJJJJJJJJJJJJJJJJJJJJJJJJJJpump"))
		u.Transaction.Transaction.Signature = nil
		u.Transaction.Transaction.Transaction.Signatures = nil
		assert.Nil(t, c.Classify(u))
	})
}

func TestClassify_CreatorExtraction(t *testing.T) {
	c := New()

	t.Run("missing account keys yields no event", func(t *testing.T) {
		u := buildUpdate(createLogs(), nil, balances("MintJJJJJJJJJJJJJJJJJJJJJJJJJJJpump"))
		u.Transaction.Transaction.Transaction.Message.AccountKeys = nil
		assert.Nil(t, c.Classify(u))
	})

	t.Run("missing message yields no event", func(t *testing.T) {
		u := buildUpdate(createLogs(), nil, balances("MintJJJJJJJJJJJJJJJJJJJJJJJJJJJpump"))
		u.Transaction.Transaction.Transaction.Message = nil
		assert.Nil(t, c.Classify(u))
	})
}

func TestClassify_CustomProgram(t *testing.T) {
	const program = "CustomProgram111111111111111111111111111111"
	c := NewForProgram(program)

	logs := []string{
		"Program " + program + " invoke [1]",
		"Program log: Instruction: Create",
	}
	u := buildUpdate(logs, nil, balances("MintJJJJJJJJJJJJJJJJJJJJJJJJJJJpump"))
	assert.NotNil(t, c.Classify(u))

	// The default pump.fun logs no longer match.
	assert.Nil(t, c.Classify(buildUpdate(createLogs(), nil, balances("MintJJJJJJJJJJJJJJJJJJJJJJJJJJJpump"))))
}

func TestIsOnCurve(t *testing.T) {
	// Canonical encoding of the ed25519 base point.
	basepoint := make([]byte, 32)
	basepoint[0] = 0x58
	for i := 1; i < 32; i++ {
		basepoint[i] = 0x66
	}
	assert.True(t, IsOnCurve(basepoint))

	assert.False(t, IsOnCurve(nil))
	assert.False(t, IsOnCurve(make([]byte, 31)))
}
