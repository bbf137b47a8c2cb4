package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ontograph/internal/graph"
	"ontograph/internal/ontology"
	"ontograph/internal/session"
)

func qn(name string) ontology.QName {
	return ontology.QName{Namespace: "CITY", Name: name}
}

func state(id graph.NodeID, class string) *session.NodeState {
	return &session.NodeState{
		ID:      id,
		Classes: []ontology.QName{qn(class)},
	}
}

func TestApplyCreateUpdateDelete(t *testing.T) {
	st := New()
	ctx := context.Background()

	city := state("c1", "CITY")
	city.Attributes = map[ontology.QName]any{qn("NAME"): "Freiburg"}
	hood := state("n1", "NEIGHBOURHOOD")
	city.Edges = map[ontology.QName][]graph.NodeID{qn("HAS_PART"): {"n1"}}
	hood.Edges = map[ontology.QName][]graph.NodeID{qn("IS_PART_OF"): {"c1"}}

	require.NoError(t, st.Apply(ctx, &session.Delta{Created: []*session.NodeState{city, hood}}))
	assert.Equal(t, 2, st.Len())

	require.NoError(t, st.Apply(ctx, &session.Delta{Updated: []*session.NodeUpdate{{
		ID:            "c1",
		SetAttributes: map[ontology.QName]any{qn("NAME"): "Freiburg im Breisgau"},
		RemovedEdges:  map[ontology.QName][]graph.NodeID{qn("HAS_PART"): {"n1"}},
	}}}))

	out, err := st.Fetch(ctx, []graph.NodeID{"c1"})
	require.NoError(t, err)
	require.Contains(t, out, graph.NodeID("c1"))
	assert.Equal(t, "Freiburg im Breisgau", out["c1"].Attributes[qn("NAME")])
	assert.Empty(t, out["c1"].Edges)

	require.NoError(t, st.Apply(ctx, &session.Delta{Deleted: []graph.NodeID{"n1"}}))
	assert.Equal(t, 1, st.Len())
}

func TestApplyIsAllOrNothing(t *testing.T) {
	st := New()
	ctx := context.Background()

	// 变更集中的一步失败，已执行的创建也不落地
	err := st.Apply(ctx, &session.Delta{
		Created: []*session.NodeState{state("c1", "CITY")},
		Deleted: []graph.NodeID{"ghost"},
	})
	var ae *session.AdapterError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, 0, st.Len())
}

func TestApplyRejectsConflicts(t *testing.T) {
	st := New()
	ctx := context.Background()
	require.NoError(t, st.Apply(ctx, &session.Delta{Created: []*session.NodeState{state("c1", "CITY")}}))

	var ae *session.AdapterError
	err := st.Apply(ctx, &session.Delta{Created: []*session.NodeState{state("c1", "CITY")}})
	assert.True(t, errors.As(err, &ae), "duplicate create")
	err = st.Apply(ctx, &session.Delta{Updated: []*session.NodeUpdate{{ID: "ghost"}}})
	assert.True(t, errors.As(err, &ae), "update of unknown node")
	err = st.Apply(ctx, &session.Delta{Deleted: []graph.NodeID{"ghost"}})
	assert.True(t, errors.As(err, &ae), "delete of unknown node")
}

func TestFetchExpandsEdgeClosure(t *testing.T) {
	st := New()
	ctx := context.Background()

	a := state("a", "CITY")
	a.Edges = map[ontology.QName][]graph.NodeID{qn("HAS_PART"): {"b"}}
	b := state("b", "NEIGHBOURHOOD")
	b.Edges = map[ontology.QName][]graph.NodeID{
		qn("IS_PART_OF"): {"a"},
		qn("HAS_PART"):   {"c"},
	}
	c := state("c", "STREET")
	c.Edges = map[ontology.QName][]graph.NodeID{qn("IS_PART_OF"): {"b"}}
	d := state("d", "CITY")
	require.NoError(t, st.Apply(ctx, &session.Delta{Created: []*session.NodeState{a, b, c, d}}))

	// 只请求 a，闭包沿边目标扩展到 b 与 c，不含无关的 d
	out, err := st.Fetch(ctx, []graph.NodeID{"a"})
	require.NoError(t, err)
	assert.Len(t, out, 3)
	assert.Contains(t, out, graph.NodeID("c"))
	assert.NotContains(t, out, graph.NodeID("d"))

	_, err = st.Fetch(ctx, []graph.NodeID{"ghost"})
	var ae *session.AdapterError
	assert.True(t, errors.As(err, &ae))
}

func TestFetchReturnsCopies(t *testing.T) {
	st := New()
	ctx := context.Background()
	a := state("a", "CITY")
	a.Attributes = map[ontology.QName]any{qn("NAME"): "Freiburg"}
	require.NoError(t, st.Apply(ctx, &session.Delta{Created: []*session.NodeState{a}}))

	out, err := st.Fetch(ctx, []graph.NodeID{"a"})
	require.NoError(t, err)
	out["a"].Attributes[qn("NAME")] = "mutated"

	again, err := st.Fetch(ctx, []graph.NodeID{"a"})
	require.NoError(t, err)
	assert.Equal(t, "Freiburg", again["a"].Attributes[qn("NAME")])
}
