package model

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/blnkfinance/custody/internal/apierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUUIDWithSuffix(t *testing.T) {
	module := "wager"
	id := GenerateUUIDWithSuffix(module)
	assert.True(t, strings.HasPrefix(id, module+"_"))
}

func TestDeterministicID(t *testing.T) {
	a := TipID("alice", "bob", "post-1")
	assert.Equal(t, a, TipID("alice", "bob", "post-1"))
	assert.NotEqual(t, a, TipID("bob", "alice", "post-1"))
	assert.NotEqual(t, DeterministicID("x", "ab", "c"), DeterministicID("x", "a", "bc"))
	assert.True(t, strings.HasPrefix(SubscriptionID("carol"), "sub_"))
}

func TestComputeSplit(t *testing.T) {
	tests := []struct {
		name    string
		pool    uint64
		bps     uint16
		fee     uint64
		net     uint64
		wantErr bool
	}{
		{name: "two point five percent", pool: 1_000_000, bps: 250, fee: 25_000, net: 975_000},
		{name: "floor rounding", pool: 999, bps: 250, fee: 24, net: 975},
		{name: "zero fee", pool: 1_000, bps: 0, fee: 0, net: 1_000},
		{name: "ceiling", pool: 10_000, bps: 500, fee: 500, net: 9_500},
		{name: "above ceiling", pool: 10_000, bps: 501, wantErr: true},
		{name: "overflow", pool: math.MaxUint64, bps: 250, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			split, err := ComputeSplit(tt.pool, tt.bps)
			if tt.wantErr {
				assert.True(t, apierror.IsCode(err, apierror.ErrArithmetic))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.fee, split.Fee)
			assert.Equal(t, tt.net, split.Net)
			assert.Equal(t, tt.pool, split.Fee+split.Net)
		})
	}
}

func TestCheckedArithmetic(t *testing.T) {
	sum, err := AddAmounts(500_000, 500_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), sum)

	_, err = AddAmounts(math.MaxUint64, 1)
	assert.True(t, apierror.IsCode(err, apierror.ErrArithmetic))

	total, err := MulAmount(1_000, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(3_000), total)

	_, err = MulAmount(math.MaxUint64/2, 3)
	assert.True(t, apierror.IsCode(err, apierror.ErrArithmetic))
}

func TestNextStatus(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		from Status
		op   Operation
		want Status
		code apierror.ErrorCode
	}{
		{name: "join open wager", kind: KindWager, from: StatusOpen, op: OpWagerJoin, want: StatusActive},
		{name: "join active wager", kind: KindWager, from: StatusActive, op: OpWagerJoin, code: apierror.ErrStateConflict},
		{name: "complete completed wager", kind: KindWager, from: StatusCompleted, op: OpWagerComplete, code: apierror.ErrStateConflict},
		{name: "complete expired wager", kind: KindWager, from: StatusExpired, op: OpWagerComplete, code: apierror.ErrStateConflict},
		{name: "dispute active wager", kind: KindWager, from: StatusActive, op: OpWagerDispute, want: StatusDisputed},
		{name: "retry after rejection", kind: KindSubscription, from: StatusPaymentRejected, op: OpSubscriptionPaymentRequested, want: StatusPaymentRequested},
		{name: "approve without request", kind: KindSubscription, from: StatusActive, op: OpSubscriptionPaymentApproved, code: apierror.ErrStateConflict},
		{name: "first purchase", kind: KindTicketing, from: StatusOpen, op: OpEventPurchase, want: StatusActive},
		{name: "wager op on tip", kind: KindTip, from: StatusCompleted, op: OpWagerJoin, code: apierror.ErrValidation},
		{name: "unknown kind", kind: Kind("loan"), from: StatusOpen, op: OpWagerJoin, code: apierror.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextStatus(tt.kind, tt.from, tt.op)
			if tt.code != "" {
				assert.True(t, apierror.IsCode(err, tt.code), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	for kind, ops := range transitions {
		for op, e := range ops {
			for from := range e {
				assert.False(t, IsTerminal(from), "%s %s leaves terminal status %s", kind, op, from)
			}
		}
	}
}

func TestExpirable(t *testing.T) {
	assert.True(t, Expirable(KindWager, StatusOpen))
	assert.False(t, Expirable(KindWager, StatusActive))
	assert.True(t, Expirable(KindSubscription, StatusPaymentRejected))
	assert.False(t, Expirable(KindTicketing, StatusOpen))
}

func TestTimeGates(t *testing.T) {
	deadline := time.Unix(86_400, 0)

	assert.NoError(t, RequireBefore(time.Unix(86_399, 0), deadline, "join"))
	assert.True(t, apierror.IsCode(RequireBefore(deadline, deadline, "join"), apierror.ErrTiming))
	assert.True(t, apierror.IsCode(RequireBefore(time.Unix(86_401, 0), deadline, "join"), apierror.ErrTiming))

	assert.NoError(t, RequireReached(deadline, deadline, "expiry"))
	assert.True(t, apierror.IsCode(RequireReached(time.Unix(86_399, 0), deadline, "expiry"), apierror.ErrTiming))

	assert.True(t, apierror.IsCode(RequireAfter(deadline, deadline, "withdraw"), apierror.ErrTiming))
	assert.NoError(t, RequireAfter(time.Unix(86_401, 0), deadline, "withdraw"))
}

func TestTicketSaleWindows(t *testing.T) {
	public := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	terms := &TicketTerms{PublicSaleTime: public, PremiumSaleTime: public.Add(-12 * time.Hour)}

	early := public.Add(-6 * time.Hour)
	assert.NoError(t, terms.RequireSaleOpen(early, TierPremium))
	assert.NoError(t, terms.RequireSaleOpen(early, TierGenesis))
	assert.True(t, apierror.IsCode(terms.RequireSaleOpen(early, TierBasic), apierror.ErrTiming))
	assert.True(t, apierror.IsCode(terms.RequireSaleOpen(public.Add(-13*time.Hour), TierPremium), apierror.ErrTiming))
	assert.NoError(t, terms.RequireSaleOpen(public, TierBasic))
}

func TestSubscriptionGrace(t *testing.T) {
	due := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	s := &SubscriptionTerms{NextPaymentDue: due}
	grace := 48 * time.Hour

	assert.Equal(t, due.Add(grace), s.GraceEndsAt(grace))
	assert.False(t, s.Lapsed(due.Add(grace), grace))
	assert.True(t, s.Lapsed(due.Add(grace+time.Second), grace))
}

func TestValidateIdentity(t *testing.T) {
	assert.NoError(t, ValidateIdentity("creator", "alice@example.com"))
	assert.True(t, apierror.IsCode(ValidateIdentity("creator", ""), apierror.ErrValidation))
	assert.True(t, apierror.IsCode(ValidateIdentity("creator", strings.Repeat("a", 65)), apierror.ErrValidation))
	assert.True(t, apierror.IsCode(ValidateIdentity("creator", "bad identity"), apierror.ErrValidation))
}

func TestValidateAmount(t *testing.T) {
	assert.NoError(t, ValidateAmount("stake", 100_000_000, 100_000_000, 10_000_000_000))
	assert.Error(t, ValidateAmount("stake", 0, 0, 0))
	assert.Error(t, ValidateAmount("stake", 99_999_999, 100_000_000, 10_000_000_000))
	assert.Error(t, ValidateAmount("stake", 10_000_000_001, 100_000_000, 10_000_000_000))
	assert.NoError(t, ValidateAmount("stake", math.MaxUint64, 1, 0))
}

func TestInstanceClone(t *testing.T) {
	deadline := time.Now()
	inst := &Instance{
		InstanceID:   "wager_1",
		Participants: []string{"alice"},
		Deadline:     &deadline,
		Terms:        Terms{Wager: &WagerTerms{GameType: GameCoinFlip}},
		MetaData:     map[string]interface{}{"k": "v"},
	}
	c := inst.Clone()
	c.Participants = append(c.Participants, "bob")
	c.Terms.Wager.GameData = "heads"
	c.MetaData["k"] = "changed"

	assert.Equal(t, []string{"alice"}, inst.Participants)
	assert.Empty(t, inst.Terms.Wager.GameData)
	assert.Equal(t, "v", inst.MetaData["k"])
	assert.Equal(t, "alice", c.Initiator())
	assert.True(t, c.HasParticipant("bob"))
	assert.False(t, inst.HasParticipant("bob"))
}
