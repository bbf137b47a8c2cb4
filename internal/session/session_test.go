package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ontograph/internal/adapter/memstore"
	"ontograph/internal/engine"
	"ontograph/internal/graph"
	"ontograph/internal/ontology"
	"ontograph/internal/session"
)

const testSchema = `
version: "1.0"
namespace: city

classes:
  - name: entity
  - name: populatedPlace
    superclasses: [entity]
    attributes:
      name:
  - name: city
    superclasses: [populatedPlace]
    restrictions:
      - relationship: hasPart
        target: neighbourhood
        min: 1
  - name: neighbourhood
    superclasses: [populatedPlace]
  - name: citizen
    superclasses: [entity]
    attributes:
      name:
      age: 25

relationships:
  - name: relationship
    superclasses: [entity]
  - name: hasPart
    superclasses: [relationship]
    inverse: isPartOf
    active: true
    domain: populatedPlace
    range: populatedPlace
  - name: isPartOf
    superclasses: [relationship]
  - name: hasInhabitant
    superclasses: [relationship]
    domain: populatedPlace
    range: citizen

attributes:
  - name: name
    superclasses: [entity]
    datatype: string(120)
    default: ""
  - name: age
    superclasses: [entity]
    datatype: int
`

func qn(name string) ontology.QName {
	return ontology.QName{Namespace: "CITY", Name: name}
}

// recordingStore 包装内存后端并记录每次收到的变更集
type recordingStore struct {
	*memstore.Store
	deltas []*session.Delta
}

func (r *recordingStore) Apply(ctx context.Context, delta *session.Delta) error {
	r.deltas = append(r.deltas, delta)
	return r.Store.Apply(ctx, delta)
}

func newTestSession(t *testing.T, mode engine.Mode) (*session.Session, *recordingStore) {
	t.Helper()
	loader := ontology.NewLoaderBytes([]byte(testSchema))
	require.NoError(t, loader.Load())
	store := &recordingStore{Store: memstore.New()}
	g := graph.New(loader)
	e := engine.New(loader, mode)
	return session.New(g, e, store), store
}

func createCityPair(t *testing.T, sess *session.Session) (graph.NodeID, graph.NodeID) {
	t.Helper()
	cityID, err := sess.Create([]ontology.QName{qn("CITY")}, map[ontology.QName]any{
		qn("NAME"): "Freiburg",
	})
	require.NoError(t, err)
	hoodID, err := sess.Create([]ontology.QName{qn("NEIGHBOURHOOD")}, map[ontology.QName]any{
		qn("NAME"): "Vauban",
	})
	require.NoError(t, err)
	require.NoError(t, sess.AddEdge(cityID, qn("HAS_PART"), hoodID))
	return cityID, hoodID
}

func TestCommitPersistsCreatedNodes(t *testing.T) {
	sess, store := newTestSession(t, engine.MinRequirements)
	cityID, hoodID := createCityPair(t, sess)

	require.NoError(t, sess.Commit(context.Background()))

	assert.Equal(t, 2, store.Len())
	require.Len(t, store.deltas, 1)
	assert.Len(t, store.deltas[0].Created, 2)
	assert.Empty(t, store.deltas[0].Updated)

	// 提交后待提交日志清空，空提交不触碰后端
	created, updated, deleted := sess.Pending()
	assert.Empty(t, created)
	assert.Empty(t, updated)
	assert.Empty(t, deleted)
	require.NoError(t, sess.Commit(context.Background()))
	assert.Len(t, store.deltas, 1)

	_ = cityID
	_ = hoodID
}

func TestCommitDeltaIsMinimal(t *testing.T) {
	sess, store := newTestSession(t, engine.MinRequirements)
	cityID, hoodID := createCityPair(t, sess)
	require.NoError(t, sess.Commit(context.Background()))

	// 只改一个属性，变更集只携带该属性
	require.NoError(t, sess.SetAttribute(cityID, qn("NAME"), "Freiburg im Breisgau"))
	require.NoError(t, sess.Commit(context.Background()))

	require.Len(t, store.deltas, 2)
	delta := store.deltas[1]
	assert.Empty(t, delta.Created)
	assert.Empty(t, delta.Deleted)
	require.Len(t, delta.Updated, 1)
	upd := delta.Updated[0]
	assert.Equal(t, cityID, upd.ID)
	assert.Equal(t, map[ontology.QName]any{qn("NAME"): "Freiburg im Breisgau"}, upd.SetAttributes)
	assert.Empty(t, upd.AddedEdges)
	assert.Empty(t, upd.RemovedEdges)

	// 改回原值等价于没改，提交为空
	require.NoError(t, sess.SetAttribute(cityID, qn("NAME"), "Freiburg im Breisgau"))
	require.NoError(t, sess.Commit(context.Background()))
	assert.Len(t, store.deltas, 2)

	_ = hoodID
}

func TestCommitDeltaTracksEdgeChanges(t *testing.T) {
	sess, store := newTestSession(t, engine.MinRequirements)
	cityID, hoodID := createCityPair(t, sess)
	require.NoError(t, sess.Commit(context.Background()))

	hood2, err := sess.Create([]ontology.QName{qn("NEIGHBOURHOOD")}, nil)
	require.NoError(t, err)
	require.NoError(t, sess.AddEdge(cityID, qn("HAS_PART"), hood2))
	require.NoError(t, sess.RemoveEdge(cityID, qn("HAS_PART"), hoodID))
	require.NoError(t, sess.Commit(context.Background()))

	delta := store.deltas[len(store.deltas)-1]
	require.Len(t, delta.Created, 1)
	assert.Equal(t, hood2, delta.Created[0].ID)

	byID := make(map[graph.NodeID]*session.NodeUpdate)
	for _, u := range delta.Updated {
		byID[u.ID] = u
	}
	require.Contains(t, byID, cityID)
	assert.Equal(t, []graph.NodeID{hood2}, byID[cityID].AddedEdges[qn("HAS_PART")])
	assert.Equal(t, []graph.NodeID{hoodID}, byID[cityID].RemovedEdges[qn("HAS_PART")])
	require.Contains(t, byID, hoodID)
	assert.Equal(t, []graph.NodeID{cityID}, byID[hoodID].RemovedEdges[qn("IS_PART_OF")])
}

func TestCreateThenRemoveCancelsOut(t *testing.T) {
	sess, store := newTestSession(t, engine.MinRequirements)
	cityID, _ := createCityPair(t, sess)
	require.NoError(t, sess.Commit(context.Background()))

	id, err := sess.Create([]ontology.QName{qn("CITIZEN")}, nil)
	require.NoError(t, err)
	require.NoError(t, sess.Remove(id))

	// 同一同步周期内创建又删除，净效果为无
	require.NoError(t, sess.Commit(context.Background()))
	assert.Len(t, store.deltas, 1)
	assert.Equal(t, 2, store.Len())

	_ = cityID
}

func TestRemovePersistedNode(t *testing.T) {
	sess, store := newTestSession(t, engine.Ignore)
	cityID, hoodID := createCityPair(t, sess)
	require.NoError(t, sess.Commit(context.Background()))

	require.NoError(t, sess.Remove(hoodID))
	require.NoError(t, sess.Commit(context.Background()))

	delta := store.deltas[len(store.deltas)-1]
	assert.Equal(t, []graph.NodeID{hoodID}, delta.Deleted)
	// 失去边的邻居作为更新进入变更集
	require.Len(t, delta.Updated, 1)
	assert.Equal(t, cityID, delta.Updated[0].ID)
	assert.Equal(t, 1, store.Len())

	_, err := sess.Get(hoodID)
	var nf *graph.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestValidationBlocksCommit(t *testing.T) {
	sess, store := newTestSession(t, engine.MinRequirements)
	cityID, err := sess.Create([]ontology.QName{qn("CITY")}, nil)
	require.NoError(t, err)

	// 城市缺少部件，提交被校验拦下，待提交日志原样保留
	err = sess.Commit(context.Background())
	var ve *engine.ValidationError
	require.True(t, errors.As(err, &ve))
	require.Len(t, ve.Violations, 1)
	assert.Equal(t, cityID, ve.Violations[0].Node)
	assert.Equal(t, qn("HAS_PART"), ve.Violations[0].Relationship)
	assert.Equal(t, 0, store.Len())

	created, _, _ := sess.Pending()
	assert.Equal(t, []graph.NodeID{cityID}, created)

	// 补上约束后同一份日志提交成功
	hoodID, err := sess.Create([]ontology.QName{qn("NEIGHBOURHOOD")}, nil)
	require.NoError(t, err)
	require.NoError(t, sess.AddEdge(cityID, qn("HAS_PART"), hoodID))
	require.NoError(t, sess.Commit(context.Background()))
	assert.Equal(t, 2, store.Len())
}

func TestAdapterFailureKeepsPendingLog(t *testing.T) {
	sess, store := newTestSession(t, engine.MinRequirements)
	createCityPair(t, sess)

	store.FailNext = errors.New("backend unavailable")
	err := sess.Commit(context.Background())
	var ae *session.AdapterError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, session.StateOpen, sess.State())

	created, _, _ := sess.Pending()
	assert.Len(t, created, 2)

	// 重试产出完全相同的变更集并成功
	require.NoError(t, sess.Commit(context.Background()))
	require.Len(t, store.deltas, 2)
	assert.Equal(t, store.deltas[0], store.deltas[1])
	assert.Equal(t, 2, store.Len())
}

// blockingStore 卡住 Apply 直到放行，用于观察提交中的会话
type blockingStore struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) Apply(ctx context.Context, _ *session.Delta) error {
	close(b.entered)
	<-b.release
	return nil
}

func (b *blockingStore) Fetch(ctx context.Context, ids []graph.NodeID) (map[graph.NodeID]*session.NodeState, error) {
	return nil, nil
}

func TestMutationsRejectedWhileCommitting(t *testing.T) {
	loader := ontology.NewLoaderBytes([]byte(testSchema))
	require.NoError(t, loader.Load())
	store := &blockingStore{entered: make(chan struct{}), release: make(chan struct{})}
	g := graph.New(loader)
	sess := session.New(g, engine.New(loader, engine.Ignore), store)

	id, err := sess.Create([]ontology.QName{qn("CITIZEN")}, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- sess.Commit(context.Background()) }()
	<-store.entered

	assert.Equal(t, session.StateCommitting, sess.State())
	assert.ErrorIs(t, sess.SetAttribute(id, qn("AGE"), 30), session.ErrCommitting)
	assert.ErrorIs(t, sess.Remove(id), session.ErrCommitting)
	assert.ErrorIs(t, sess.Rollback(), session.ErrCommitting)
	assert.ErrorIs(t, sess.Commit(context.Background()), session.ErrCommitting)
	_, err = sess.Create([]ontology.QName{qn("CITIZEN")}, nil)
	assert.ErrorIs(t, err, session.ErrCommitting)

	close(store.release)
	require.NoError(t, <-done)
	assert.Equal(t, session.StateOpen, sess.State())
}

func TestRollback(t *testing.T) {
	sess, _ := newTestSession(t, engine.MinRequirements)
	cityID, hoodID := createCityPair(t, sess)
	require.NoError(t, sess.Commit(context.Background()))

	require.NoError(t, sess.SetAttribute(cityID, qn("NAME"), "renamed"))
	require.NoError(t, sess.Remove(hoodID))
	extraID, err := sess.Create([]ontology.QName{qn("CITIZEN")}, nil)
	require.NoError(t, err)

	require.NoError(t, sess.Rollback())

	// 区域恢复到最近一次提交的形状
	city, err := sess.Get(cityID)
	require.NoError(t, err)
	assert.Equal(t, "Freiburg", city.Attributes[qn("NAME")])
	hood, err := sess.Get(hoodID)
	require.NoError(t, err)
	assert.True(t, hood.HasEdge(qn("IS_PART_OF"), cityID))
	_, err = sess.Get(extraID)
	assert.Error(t, err)

	created, updated, deleted := sess.Pending()
	assert.Empty(t, created)
	assert.Empty(t, updated)
	assert.Empty(t, deleted)
}

func TestRollbackWithoutCommitDropsEverything(t *testing.T) {
	sess, _ := newTestSession(t, engine.MinRequirements)
	cityID, hoodID := createCityPair(t, sess)

	require.NoError(t, sess.Rollback())

	_, err := sess.Get(cityID)
	assert.Error(t, err)
	_, err = sess.Get(hoodID)
	assert.Error(t, err)
	assert.Empty(t, sess.Tracked())
}

func TestHydrate(t *testing.T) {
	sess, store := newTestSession(t, engine.MinRequirements)
	cityID, hoodID := createCityPair(t, sess)
	require.NoError(t, sess.SetAttribute(cityID, qn("NAME"), "Freiburg"))
	require.NoError(t, sess.Commit(context.Background()))

	// 新图、新会话、同一个后端
	loader := ontology.NewLoaderBytes([]byte(testSchema))
	require.NoError(t, loader.Load())
	g2 := graph.New(loader)
	sess2 := session.New(g2, engine.New(loader, engine.MinRequirements), store)

	// 只请求城市，邻居闭包随边目标一起装入
	require.NoError(t, sess2.Hydrate(context.Background(), []graph.NodeID{cityID}))

	city, err := sess2.Get(cityID)
	require.NoError(t, err)
	assert.Equal(t, "Freiburg", city.Attributes[qn("NAME")])
	assert.True(t, city.HasEdge(qn("HAS_PART"), hoodID))
	hood, err := sess2.Get(hoodID)
	require.NoError(t, err)
	assert.True(t, hood.HasEdge(qn("IS_PART_OF"), cityID))

	// 回填的节点是已提交状态，空提交不触碰后端
	applied := len(store.deltas)
	require.NoError(t, sess2.Commit(context.Background()))
	assert.Len(t, store.deltas, applied)
}

// staleStore 返回带 JSON 反序列化痕迹的快照（整数变 float64）
type staleStore struct {
	state *session.NodeState
}

func (s *staleStore) Apply(ctx context.Context, _ *session.Delta) error { return nil }

func (s *staleStore) Fetch(ctx context.Context, ids []graph.NodeID) (map[graph.NodeID]*session.NodeState, error) {
	return map[graph.NodeID]*session.NodeState{s.state.ID: s.state}, nil
}

func TestHydrateNormalizesDecodedAttributes(t *testing.T) {
	loader := ontology.NewLoaderBytes([]byte(testSchema))
	require.NoError(t, loader.Load())

	store := &staleStore{state: &session.NodeState{
		ID:      "n1",
		Classes: []ontology.QName{qn("CITIZEN")},
		Attributes: map[ontology.QName]any{
			qn("AGE"): float64(42),
		},
	}}
	g := graph.New(loader)
	sess := session.New(g, engine.New(loader, engine.Ignore), store)

	require.NoError(t, sess.Hydrate(context.Background(), []graph.NodeID{"n1"}))
	node, err := sess.Get("n1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), node.Attributes[qn("AGE")])
}

func TestMergeMovesRegionBetweenSessions(t *testing.T) {
	src, srcStore := newTestSession(t, engine.MinRequirements)
	dst, dstStore := newTestSession(t, engine.MinRequirements)
	cityID, hoodID := createCityPair(t, src)

	require.NoError(t, dst.Merge(src))

	// 节点保留标识，改由目标会话跟踪
	assert.Empty(t, src.Tracked())
	assert.ElementsMatch(t, []graph.NodeID{cityID, hoodID}, dst.Tracked())
	city, err := dst.Get(cityID)
	require.NoError(t, err)
	assert.True(t, city.HasEdge(qn("HAS_PART"), hoodID))

	require.NoError(t, dst.Commit(context.Background()))
	assert.Equal(t, 2, dstStore.Len())
	assert.Equal(t, 0, srcStore.Len())

	assert.Error(t, dst.Merge(dst), "self merge is rejected")
}

func TestConcurrentOpposingMerges(t *testing.T) {
	// 两个方向同时合并不能互相等锁
	for i := 0; i < 50; i++ {
		a, _ := newTestSession(t, engine.MinRequirements)
		b, _ := newTestSession(t, engine.MinRequirements)
		createCityPair(t, a)
		createCityPair(t, b)

		done := make(chan struct{})
		go func() {
			var wg sync.WaitGroup
			wg.Add(2)
			go func() { defer wg.Done(); _ = a.Merge(b) }()
			go func() { defer wg.Done(); _ = b.Merge(a) }()
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("opposing merges deadlocked")
		}

		// 两个区域最终都落在同一个会话里
		assert.Equal(t, 4, len(a.Tracked())+len(b.Tracked()))
	}
}
