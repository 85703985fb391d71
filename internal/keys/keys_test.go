package keys

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valor/internal/types"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type recordingStore struct {
	inserted []*types.LicenseKey
	err      error
}

func (s *recordingStore) Insert(_ context.Context, k *types.LicenseKey) error {
	if s.err != nil {
		return s.err
	}
	k.ID = "key-" + k.LicenseKey[:5]
	s.inserted = append(s.inserted, k)
	return nil
}

func TestGenerator_FormatAndAlphabet(t *testing.T) {
	g := NewGenerator()
	pattern := regexp.MustCompile(`^[A-HJ-NP-Z2-9]{5}(-[A-HJ-NP-Z2-9]{5}){3}$`)

	seen := make(map[string]bool)
	for range 200 {
		k, err := g.Generate()
		require.NoError(t, err)
		assert.Regexp(t, pattern, k)
		assert.NotContains(t, k, "0")
		assert.NotContains(t, k, "O")
		assert.NotContains(t, k, "1")
		assert.NotContains(t, k, "I")
		assert.False(t, seen[k], "duplicate key %s", k)
		seen[k] = true
	}
}

func TestGenerator_Deterministic(t *testing.T) {
	src := bytes.NewReader([]byte{0, 1, 2, 31, 32, 33})
	g := NewGenerator(WithSegments(2), WithSegmentLength(3), WithRandReader(src))

	k, err := g.Generate()

	require.NoError(t, err)
	assert.Equal(t, "ABC-9AB", k)
}

func TestGenerator_RandFailure(t *testing.T) {
	g := NewGenerator(WithRandReader(strings.NewReader("")))

	_, err := g.Generate()

	assert.Error(t, err)
}

func TestAllocator_MintsTimedKey(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &recordingStore{}
	a := NewAllocator(nil, fixedClock{now}, nil)
	days := 30

	k, err := a.Allocate(context.Background(), store, Request{VariantID: "var-1", OrderID: "ord-1", DurationDays: &days})

	require.NoError(t, err)
	require.Len(t, store.inserted, 1)
	assert.Equal(t, types.KeyStatusUsed, k.Status)
	assert.Equal(t, "ord-1", *k.AssignedToOrder)
	assert.Equal(t, now, *k.AssignedAt)
	require.NotNil(t, k.ExpiresAt)
	assert.Equal(t, now.Add(30*24*time.Hour), *k.ExpiresAt)
}

func TestAllocator_LifetimeAndExplicitKey(t *testing.T) {
	store := &recordingStore{}
	a := NewAllocator(nil, fixedClock{time.Now()}, nil)

	k, err := a.Allocate(context.Background(), store, Request{VariantID: "var-1", OrderID: "ord-1", ExplicitKey: "SUPPLIER-KEY-123"})

	require.NoError(t, err)
	assert.Equal(t, "SUPPLIER-KEY-123", k.LicenseKey)
	assert.Nil(t, k.ExpiresAt)
}

func TestAllocator_PersistFailure(t *testing.T) {
	a := NewAllocator(nil, nil, nil)

	_, err := a.Allocate(context.Background(), &recordingStore{err: errors.New("disk full")}, Request{OrderID: "ord-1"})

	assert.True(t, types.IsCode(err, types.ErrCodeInternalKeyAllocation))
}

func TestAllocator_DuplicateKeyForOrderKeepsConflictCode(t *testing.T) {
	a := NewAllocator(nil, nil, nil)
	dup := types.NewAppError(types.ErrCodeConflictTransition, "dup", nil)

	_, err := a.Allocate(context.Background(), &recordingStore{err: dup}, Request{OrderID: "ord-1"})

	assert.True(t, types.IsCode(err, types.ErrCodeConflictTransition))
}

func TestAllocator_DuplicateValueIsDistinguishable(t *testing.T) {
	a := NewAllocator(nil, nil, nil)
	taken := types.NewAppError(types.ErrCodeInternalKeyAllocation, "taken", types.ErrKeyValueTaken)

	_, err := a.Allocate(context.Background(), &recordingStore{err: taken}, Request{OrderID: "ord-1", ExplicitKey: "RECYCLED"})

	assert.ErrorIs(t, err, types.ErrKeyValueTaken)
	assert.False(t, types.IsCode(err, types.ErrCodeConflictTransition))
}

func TestExpiresAt(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	zero, one := 0, 1

	assert.Nil(t, ExpiresAt(now, nil))
	assert.Nil(t, ExpiresAt(now, &zero))
	assert.Equal(t, now.Add(24*time.Hour), *ExpiresAt(now, &one))
}
