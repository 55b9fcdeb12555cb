package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntity_Lifecycle(t *testing.T) {
	var e Entity[int]

	_, known := e.Value()
	assert.False(t, known)
	assert.Equal(t, PhaseStale, e.Phase())

	e.Seed(40)
	v, known := e.Value()
	assert.True(t, known)
	assert.Equal(t, 40, v)
	assert.Equal(t, PhaseStale, e.Phase())

	e.Begin()
	assert.Equal(t, PhasePending, e.Phase())

	e.Reconcile(55)
	v, _ = e.Value()
	assert.Equal(t, 55, v)
	assert.Equal(t, PhaseReconciled, e.Phase())
}

func TestEntity_SeedNeverOverridesReconciled(t *testing.T) {
	var e Entity[int]
	e.Reconcile(100)
	e.Seed(3)

	v, _ := e.Value()
	assert.Equal(t, 100, v)
	assert.Equal(t, PhaseReconciled, e.Phase())
}

func TestEntity_FailKeepsValue(t *testing.T) {
	var e Entity[int]
	e.Reconcile(7)
	e.Begin()
	e.Fail()

	v, _ := e.Value()
	assert.Equal(t, 7, v)
	assert.Equal(t, PhaseStale, e.Phase())
}

func TestEntity_AdjustIsSupersededByReconcile(t *testing.T) {
	var e Entity[int]
	e.Reconcile(10)
	e.Adjust(func(v int) int { return v + 25 })

	v, _ := e.Value()
	assert.Equal(t, 35, v)
	assert.Equal(t, PhaseStale, e.Phase())

	// the backend only credited part of it; its figure wins
	e.Reconcile(20)
	v, _ = e.Value()
	assert.Equal(t, 20, v)
}

func TestEntity_Based(t *testing.T) {
	var e Entity[int]
	e.Adjust(func(v int) int { return v + 10 })
	_, known := e.Value()
	assert.True(t, known)
	assert.False(t, e.Based(), "adjustments alone are not a base")

	e.Seed(40)
	assert.True(t, e.Based())

	e.Reset()
	assert.False(t, e.Based())
	e.Reconcile(5)
	assert.True(t, e.Based())
}

func TestEntity_Reset(t *testing.T) {
	var e Entity[string]
	e.Reconcile("x")
	e.Reset()

	v, known := e.Value()
	assert.False(t, known)
	assert.Equal(t, "", v)
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "stale", PhaseStale.String())
	assert.Equal(t, "pending", PhasePending.String())
	assert.Equal(t, "reconciled", PhaseReconciled.String())
	assert.Equal(t, "Phase(9)", Phase(9).String())
}
