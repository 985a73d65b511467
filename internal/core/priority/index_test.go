package priority

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntrixbase/msgstore/internal/core/msgid"
)

func u32(v uint32) *uint32 { return &v }

func admit(t *testing.T, idx *Index, priority, size uint32) msgid.ID {
	t.Helper()
	adm, err := idx.Admit(priority, size)
	require.NoError(t, err)
	return adm.ID
}

func TestAdmit_NoLimits(t *testing.T) {
	idx := New(nil)
	a := admit(t, idx, 1, 10)
	b := admit(t, idx, 2, 20)

	assert.True(t, a.Less(b))
	assert.Equal(t, 2, idx.Len())
	assert.Equal(t, uint64(30), idx.ByteSize())
}

func TestAdmit_ExceedsStoreMax(t *testing.T) {
	idx := New(nil)
	idx.SetStoreMax(u32(100))

	_, err := idx.Admit(1, 101)
	assert.ErrorIs(t, err, ErrExceedsStoreMax)
	assert.True(t, IsConflict(err))
	assert.Equal(t, 0, idx.Len())
}

func TestAdmit_ExceedsGroupMax(t *testing.T) {
	idx := New(nil)
	_, err := idx.SetGroupDefault(3, 50)
	require.NoError(t, err)

	_, err = idx.Admit(3, 51)
	assert.ErrorIs(t, err, ErrExceedsGroupMax)

	_, err = idx.Admit(4, 51)
	assert.NoError(t, err)
}

func TestAdmit_EvictsLowerPriority(t *testing.T) {
	idx := New(nil)
	idx.SetStoreMax(u32(1000))

	low := admit(t, idx, 1, 600)
	adm, err := idx.Admit(9, 600)
	require.NoError(t, err)

	assert.Equal(t, []msgid.ID{low}, adm.Evicted)
	_, _, ok := idx.Lookup(low)
	assert.False(t, ok)
	assert.Equal(t, uint64(600), idx.ByteSize())
}

func TestAdmit_LacksPriority(t *testing.T) {
	idx := New(nil)
	idx.SetStoreMax(u32(1000))
	high := admit(t, idx, 9, 600)

	_, err := idx.Admit(1, 600)
	assert.ErrorIs(t, err, ErrLacksPriority)

	// unchanged
	_, _, ok := idx.Lookup(high)
	assert.True(t, ok)
	assert.Equal(t, 1, idx.Len())
}

func TestAdmit_EvictionOrder(t *testing.T) {
	idx := New(nil)
	idx.SetStoreMax(u32(100))

	p2a := admit(t, idx, 2, 25)
	p1a := admit(t, idx, 1, 25)
	p1b := admit(t, idx, 1, 25)
	admit(t, idx, 3, 25)

	adm, err := idx.Admit(2, 60)
	require.NoError(t, err)
	assert.Equal(t, []msgid.ID{p1a, p1b, p2a}, adm.Evicted)
	assert.Equal(t, uint64(85), idx.ByteSize())
}

func TestAdmit_GroupOverflowEvictsOldestInGroup(t *testing.T) {
	idx := New(nil)
	_, err := idx.SetGroupDefault(5, 100)
	require.NoError(t, err)

	first := admit(t, idx, 5, 40)
	second := admit(t, idx, 5, 40)
	other := admit(t, idx, 1, 40)

	adm, err := idx.Admit(5, 40)
	require.NoError(t, err)
	assert.Equal(t, []msgid.ID{first}, adm.Evicted)

	assert.Equal(t, []msgid.ID{second, adm.ID}, idx.GroupMembers(5))
	_, _, ok := idx.Lookup(other)
	assert.True(t, ok)
}

func TestAdmit_GroupAndStoreCombined(t *testing.T) {
	idx := New(nil)
	idx.SetStoreMax(u32(100))
	_, err := idx.SetGroupDefault(5, 60)
	require.NoError(t, err)

	g5 := admit(t, idx, 5, 50)
	low := admit(t, idx, 1, 50)

	adm, err := idx.Admit(5, 50)
	require.NoError(t, err)
	assert.Equal(t, []msgid.ID{g5}, adm.Evicted)
	_, _, ok := idx.Lookup(low)
	assert.True(t, ok)
	assert.Equal(t, uint64(100), idx.ByteSize())
}

func TestNext(t *testing.T) {
	idx := New(nil)

	_, ok := idx.Next(Selector{})
	assert.False(t, ok)

	p1old := admit(t, idx, 1, 1)
	p1new := admit(t, idx, 1, 1)
	p7old := admit(t, idx, 7, 1)
	p7new := admit(t, idx, 7, 1)

	tests := []struct {
		name string
		sel  Selector
		want msgid.ID
		ok   bool
	}{
		{name: "global", sel: Selector{}, want: p7old, ok: true},
		{name: "global reverse", sel: Selector{Reverse: true}, want: p1new, ok: true},
		{name: "priority", sel: Selector{Priority: u32(1)}, want: p1old, ok: true},
		{name: "priority reverse", sel: Selector{Priority: u32(7), Reverse: true}, want: p7new, ok: true},
		{name: "missing priority", sel: Selector{Priority: u32(4)}},
		{name: "by id", sel: Selector{ID: &p1new}, want: p1new, ok: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := idx.Next(tt.sel)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}

	missing := msgid.ID{Lo: 1}
	_, ok = idx.Next(Selector{ID: &missing})
	assert.False(t, ok)
}

func TestForget(t *testing.T) {
	idx := New(nil)
	id := admit(t, idx, 2, 10)

	require.NoError(t, idx.Forget(id))
	assert.ErrorIs(t, idx.Forget(id), ErrNotFound)
	assert.Equal(t, 0, idx.Len())
	assert.Empty(t, idx.Groups(nil, false))
}

func TestForgetGroup(t *testing.T) {
	idx := New(nil)
	a := admit(t, idx, 2, 10)
	b := admit(t, idx, 2, 10)
	admit(t, idx, 3, 10)

	assert.Equal(t, []msgid.ID{a, b}, idx.ForgetGroup(2))
	assert.Nil(t, idx.ForgetGroup(2))
	assert.Equal(t, 1, idx.Len())
}

func TestSetGroupDefault_Prunes(t *testing.T) {
	idx := New(nil)
	a := admit(t, idx, 4, 30)
	b := admit(t, idx, 4, 30)
	c := admit(t, idx, 4, 30)

	evicted, err := idx.SetGroupDefault(4, 40)
	require.NoError(t, err)
	assert.Equal(t, []msgid.ID{a, b}, evicted)
	assert.Equal(t, []msgid.ID{c}, idx.GroupMembers(4))

	assert.Equal(t, []GroupDefault{{Priority: 4, MaxByteSize: 40}}, idx.GroupDefaults(nil))
	assert.True(t, idx.DeleteGroupDefault(4))
	assert.False(t, idx.DeleteGroupDefault(4))
	assert.Empty(t, idx.GroupDefaults(nil))
}

func TestSetGroupDefault_AboveStoreMax(t *testing.T) {
	idx := New(nil)
	idx.SetStoreMax(u32(10))
	_, err := idx.SetGroupDefault(1, 11)
	assert.ErrorIs(t, err, ErrExceedsStoreMax)
	assert.Empty(t, idx.GroupDefaults(nil))
}

func TestSetStoreMax_Prunes(t *testing.T) {
	idx := New(nil)
	high := admit(t, idx, 9, 50)
	lowA := admit(t, idx, 1, 50)
	lowB := admit(t, idx, 1, 50)

	evicted := idx.SetStoreMax(u32(60))
	assert.Equal(t, []msgid.ID{lowA, lowB}, evicted)
	assert.Equal(t, uint32(60), *idx.MaxByteSize())
	_, _, ok := idx.Lookup(high)
	assert.True(t, ok)

	assert.Nil(t, idx.SetStoreMax(nil))
	assert.Nil(t, idx.MaxByteSize())
}

func TestRestore(t *testing.T) {
	gen := msgid.NewGenerator()
	idx := New(gen)
	restored := msgid.ID{Hi: 1, Sequence: 3}
	idx.Restore(restored, 6, 70)

	prio, size, ok := idx.Lookup(restored)
	require.True(t, ok)
	assert.Equal(t, uint32(6), prio)
	assert.Equal(t, uint32(70), size)

	next := admit(t, idx, 6, 1)
	assert.True(t, restored.Less(next))
}

func TestSnapshot(t *testing.T) {
	idx := New(nil)
	idx.SetStoreMax(u32(500))
	_, err := idx.SetGroupDefault(2, 100)
	require.NoError(t, err)
	id := admit(t, idx, 2, 10)
	admit(t, idx, 8, 20)

	snap := idx.Snapshot(true)
	assert.Equal(t, uint64(30), snap.ByteSize)
	assert.Equal(t, uint32(500), *snap.MaxByteSize)
	assert.Equal(t, 2, snap.MessageCount)
	assert.Equal(t, 2, snap.GroupCount)
	require.Len(t, snap.Groups, 2)
	assert.Equal(t, uint32(2), snap.Groups[0].Priority)
	assert.Equal(t, uint32(100), *snap.Groups[0].MaxByteSize)
	assert.Equal(t, []MessageView{{ID: id, ByteSize: 10}}, snap.Groups[0].Messages)
	assert.Nil(t, snap.Groups[1].MaxByteSize)

	only := idx.Groups(u32(8), false)
	require.Len(t, only, 1)
	assert.Equal(t, uint32(8), only[0].Priority)
	assert.Nil(t, only[0].Messages)
	assert.Empty(t, idx.Groups(u32(5), false))
}

// Admitted bytes always equal the sum of live member sizes.
func TestAdmissionConservation(t *testing.T) {
	idx := New(nil)
	idx.SetStoreMax(u32(1000))
	_, err := idx.SetGroupDefault(3, 300)
	require.NoError(t, err)

	sizes := []uint32{120, 300, 50, 700, 90, 410, 5, 260}
	for i, size := range sizes {
		_, _ = idx.Admit(uint32(i%4), size)

		var total uint64
		for _, g := range idx.Groups(nil, true) {
			var groupTotal uint64
			for _, m := range g.Messages {
				groupTotal += uint64(m.ByteSize)
			}
			assert.Equal(t, g.ByteSize, groupTotal)
			total += groupTotal
		}
		assert.Equal(t, idx.ByteSize(), total)
		assert.LessOrEqual(t, total, uint64(1000))
	}
}

func TestCode(t *testing.T) {
	assert.Equal(t, "EXCEEDS_STORE_MAX", Code(ErrExceedsStoreMax))
	assert.Equal(t, "EXCEEDS_GROUP_MAX", Code(fmt.Errorf("admit: %w", ErrExceedsGroupMax)))
	assert.Equal(t, "LACKS_PRIORITY", Code(ErrLacksPriority))
	assert.Equal(t, "", Code(ErrNotFound))
}
