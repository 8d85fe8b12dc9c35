package dag

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/runbookctl/engine/pkg/orcherrors"
)

func TestValidateAcceptsAcyclicGraph(t *testing.T) {
	d := New()
	d.AddEdge("out", "src")
	d.AddEdge("merged", "a")
	d.AddEdge("merged", "b")
	require.NoError(t, d.Validate())
}

func TestValidateDetectsCycle(t *testing.T) {
	d := New()
	d.AddEdge("a", "b")
	d.AddEdge("b", "c")
	d.AddEdge("c", "a")

	err := d.Validate()
	require.Error(t, err)
	var cycleErr *orcherrors.CycleError
	require.ErrorAs(t, err, &cycleErr)
}

func TestSorterDispatchesInDependencyOrder(t *testing.T) {
	d := New()
	d.AddNode("src")
	d.AddEdge("out", "src")

	s := d.CreateSorter()
	require.True(t, s.IsActive())

	ready := s.GetReady()
	require.Equal(t, []string{"src"}, ready)
	require.Empty(t, s.GetReady(), "src must not be returned twice")

	s.Done("src")
	ready = s.GetReady()
	require.Equal(t, []string{"out"}, ready)

	s.Done("out")
	require.False(t, s.IsActive())
}

func TestSorterReturnsAllRootsAtOnce(t *testing.T) {
	d := New()
	d.AddEdge("merged", "a")
	d.AddEdge("merged", "b")

	s := d.CreateSorter()
	ready := s.GetReady()
	require.Equal(t, []string{"a", "b"}, ready)

	s.Done("a")
	require.Empty(t, s.GetReady(), "merged still waits on b")
	s.Done("b")
	require.Equal(t, []string{"merged"}, s.GetReady())
}
